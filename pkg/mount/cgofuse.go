package mount

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/sly67/tahoegrid/pkg/capability"
	"github.com/sly67/tahoegrid/pkg/gridfs"
)

const (
	// defaultBlockSize is the unit of ranged reads against the grid.
	defaultBlockSize = 128 * 1024
	// defaultCacheBlocks bounds the block cache at 32 MiB with the
	// default block size.
	defaultCacheBlocks = 256
)

// Config tunes the cgofuse facility. The zero value is usable.
type Config struct {
	// BlockSize is the size of each ranged read and cache entry.
	BlockSize int64
	// CacheBlocks is the number of blocks the LRU cache retains.
	CacheBlocks int
	// Logger receives facility events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Facility exposes a directory graph read-only at a native mount point
// through cgofuse (FUSE on Unix, WinFSP on Windows).
type Facility struct {
	blockSize int64
	cache     *lru.Cache[blockKey, []byte]
	log       *zap.Logger
}

type blockKey struct {
	cap   capability.Cap
	index int64
}

// New constructs a cgofuse facility.
func New(cfg Config) (*Facility, error) {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	if cfg.CacheBlocks <= 0 {
		cfg.CacheBlocks = defaultCacheBlocks
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cache, err := lru.New[blockKey, []byte](cfg.CacheBlocks)
	if err != nil {
		return nil, gridfs.MountError.Wrap(err)
	}
	return &Facility{
		blockSize: cfg.BlockSize,
		cache:     cache,
		log:       cfg.Logger,
	}, nil
}

func (f *Facility) Name() string { return "cgofuse" }

// Serve mounts dir at mountpoint and blocks until ctx is cancelled or the
// host fails. The exposure is strictly read-only regardless of the
// directory's capabilities.
func (f *Facility) Serve(ctx context.Context, dir *gridfs.Directory, mountpoint string) error {
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return err
	}

	adapter := newGridFS(ctx, dir, f)
	host := fuse.NewFileSystemHost(adapter)
	host.SetCapReaddirPlus(false)

	f.log.Info("mounting grid directory",
		zap.String("mountpoint", mountpoint),
		zap.Stringer("directory", dir))

	// host.Mount blocks until unmounted.
	errCh := make(chan error, 1)
	go func() {
		if !host.Mount(mountpoint, nil) {
			errCh <- fuse.Error(-1)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		host.Unmount()
		return ctx.Err()
	}
}

// gridFS adapts a directory graph to fuse.FileSystemInterface. Lookups
// walk the graph from the root; the graph's own lazy child population
// keeps repeated lookups cheap.
//
// cgofuse dispatches callbacks from multiple threads while Directory
// nodes are unsynchronized, so every callback that walks the graph holds
// graphMu for the whole traversal.
type gridFS struct {
	fuse.FileSystemBase

	ctx      context.Context
	root     *gridfs.Directory
	facility *Facility

	graphMu sync.Mutex

	mu      sync.Mutex
	handles map[uint64]*gridfs.File
	nextFh  atomic.Uint64
}

func newGridFS(ctx context.Context, root *gridfs.Directory, f *Facility) *gridFS {
	return &gridFS{
		ctx:      ctx,
		root:     root,
		facility: f,
		handles:  make(map[uint64]*gridfs.File),
	}
}

func (g *gridFS) allocFh(file *gridfs.File) uint64 {
	fh := g.nextFh.Add(1)
	g.mu.Lock()
	g.handles[fh] = file
	g.mu.Unlock()
	return fh
}

func (g *gridFS) getFh(fh uint64) *gridfs.File {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handles[fh]
}

func (g *gridFS) freeFh(fh uint64) *gridfs.File {
	g.mu.Lock()
	file := g.handles[fh]
	delete(g.handles, fh)
	g.mu.Unlock()
	return file
}

// lookup resolves a slash-separated mount path to a node. The second
// return value is a FUSE errno, zero on success. The caller must hold
// graphMu.
func (g *gridFS) lookup(path string) (gridfs.Node, int) {
	var node gridfs.Node = g.root
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		dir, ok := node.(*gridfs.Directory)
		if !ok {
			return nil, -fuse.ENOTDIR
		}
		child, err := dir.Child(g.ctx, part)
		if err != nil {
			if gridfs.NotFoundError.Has(err) {
				return nil, -fuse.ENOENT
			}
			g.facility.log.Error("lookup failed",
				zap.String("path", path), zap.Error(err))
			return nil, -fuse.EIO
		}
		node = child
	}
	return node, 0
}

func nodeToStat(node gridfs.Node, stat *fuse.Stat_t) {
	switch n := node.(type) {
	case *gridfs.Directory:
		stat.Mode = fuse.S_IFDIR | 0555
		stat.Nlink = 2
	case *gridfs.File:
		stat.Mode = fuse.S_IFREG | 0444
		stat.Nlink = 1
		stat.Size = n.Size()
		if mt := n.ModificationTime(); !mt.IsZero() {
			ts := fuse.NewTimespec(mt)
			stat.Mtim = ts
			stat.Atim = ts
			stat.Ctim = ts
		}
	}
	stat.Uid = uint32(os.Getuid())
	stat.Gid = uint32(os.Getgid())
}

func (g *gridFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	g.graphMu.Lock()
	defer g.graphMu.Unlock()

	node, errno := g.lookup(path)
	if errno != 0 {
		return errno
	}
	nodeToStat(node, stat)
	return 0
}

func (g *gridFS) Opendir(path string) (int, uint64) {
	g.graphMu.Lock()
	defer g.graphMu.Unlock()

	node, errno := g.lookup(path)
	if errno != 0 {
		return errno, ^uint64(0)
	}
	if _, ok := node.(*gridfs.Directory); !ok {
		return -fuse.ENOTDIR, ^uint64(0)
	}
	return 0, 0
}

func (g *gridFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	g.graphMu.Lock()
	defer g.graphMu.Unlock()

	node, errno := g.lookup(path)
	if errno != 0 {
		return errno
	}
	dir, ok := node.(*gridfs.Directory)
	if !ok {
		return -fuse.ENOTDIR
	}

	children, err := dir.Children(g.ctx)
	if err != nil {
		g.facility.log.Error("readdir failed",
			zap.String("path", path), zap.Error(err))
		return -fuse.EIO
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for name, child := range children {
		var st fuse.Stat_t
		nodeToStat(child, &st)
		if !fill(name, &st, 0) {
			break
		}
	}
	return 0
}

func (g *gridFS) Open(path string, flags int) (int, uint64) {
	if flags&(os.O_WRONLY|os.O_RDWR) != 0 {
		return -fuse.EROFS, ^uint64(0)
	}

	g.graphMu.Lock()
	defer g.graphMu.Unlock()

	node, errno := g.lookup(path)
	if errno != 0 {
		return errno, ^uint64(0)
	}
	file, ok := node.(*gridfs.File)
	if !ok {
		return -fuse.EISDIR, ^uint64(0)
	}
	return 0, g.allocFh(file)
}

func (g *gridFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	file := g.getFh(fh)
	if file == nil {
		return -fuse.EIO
	}

	if ofst >= file.Size() {
		return 0
	}
	end := ofst + int64(len(buff))
	if end > file.Size() {
		end = file.Size()
	}

	n := 0
	for off := ofst; off < end; {
		block, err := g.block(file, off/g.facility.blockSize)
		if err != nil {
			g.facility.log.Error("read failed",
				zap.String("path", path), zap.Int64("offset", off), zap.Error(err))
			return -fuse.EIO
		}
		inBlock := off % g.facility.blockSize
		if inBlock >= int64(len(block)) {
			break
		}
		copied := copy(buff[n:end-ofst], block[inBlock:])
		n += copied
		off += int64(copied)
	}
	return n
}

// block returns the file's content block at the given index, from cache
// when possible.
func (g *gridFS) block(file *gridfs.File, index int64) ([]byte, error) {
	key := blockKey{cap: file.Caps().ReadCap(), index: index}
	if block, ok := g.facility.cache.Get(key); ok {
		return block, nil
	}

	size := g.facility.blockSize
	block, err := file.ReadRange(g.ctx, index*size, size)
	if err != nil {
		return nil, err
	}
	g.facility.cache.Add(key, block)
	return block, nil
}

func (g *gridFS) Release(path string, fh uint64) int {
	if file := g.freeFh(fh); file != nil {
		file.Close()
	}
	return 0
}

func (g *gridFS) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 4096
	stat.Frsize = 4096
	stat.Namemax = 255
	return 0
}

func (g *gridFS) Mkdir(path string, mode uint32) int            { return -fuse.EROFS }
func (g *gridFS) Rmdir(path string) int                         { return -fuse.EROFS }
func (g *gridFS) Unlink(path string) int                        { return -fuse.EROFS }
func (g *gridFS) Rename(oldpath string, newpath string) int     { return -fuse.EROFS }
func (g *gridFS) Truncate(path string, size int64, fh uint64) int { return -fuse.EROFS }
func (g *gridFS) Write(path string, buff []byte, ofst int64, fh uint64) int { return -fuse.EROFS }
func (g *gridFS) Create(path string, flags int, mode uint32) (int, uint64) {
	return -fuse.EROFS, ^uint64(0)
}
