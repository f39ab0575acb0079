// Package gridfs turns opaque Tahoe-LAFS capabilities into typed nodes and
// models the grid's directory graph. A Filesystem is a session against one
// WAPI endpoint; Directory and File are the two node types, produced by a
// single resolver so File/Directory typing is decided in exactly one place.
package gridfs

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sly67/tahoegrid/pkg/capability"
	"github.com/sly67/tahoegrid/pkg/wapi"
)

// Node is a resolved grid object: a *Directory or a *File.
type Node interface {
	// Caps returns the capability set known for the object.
	Caps() capability.Set
	// Mutable reports whether the object's content can change in place.
	Mutable() bool
	// Writable reports whether this node holds a write capability.
	Writable() bool
}

// Filesystem is a session against a grid's WAPI endpoint. All node state is
// in memory and lives only as long as the session; nothing is persisted.
type Filesystem struct {
	client    *wapi.Client
	log       *zap.Logger
	startTime time.Time
}

// Dial validates the endpoint with a statistics probe and returns a session.
// Construction fails with a wapi.FilesystemError when the endpoint is
// unreachable or does not answer like a grid node.
func Dial(ctx context.Context, cfg wapi.Config) (*Filesystem, error) {
	client, err := wapi.New(cfg)
	if err != nil {
		return nil, err
	}
	return dial(ctx, client, cfg.Logger)
}

// DialClient is Dial for callers that already hold a configured client.
func DialClient(ctx context.Context, client *wapi.Client, log *zap.Logger) (*Filesystem, error) {
	return dial(ctx, client, log)
}

func dial(ctx context.Context, client *wapi.Client, log *zap.Logger) (*Filesystem, error) {
	if log == nil {
		log = zap.NewNop()
	}

	uptime, err := client.Probe(ctx)
	if err != nil {
		return nil, err
	}

	fs := &Filesystem{
		client:    client,
		log:       log,
		startTime: time.Now().Add(-uptime),
	}
	log.Info("connected to grid",
		zap.String("endpoint", client.BaseURL()),
		zap.Time("node_start_time", fs.startTime),
	)
	return fs, nil
}

// Client exposes the underlying WAPI client.
func (fs *Filesystem) Client() *wapi.Client { return fs.client }

// StartTime returns when the grid node reported it was started, derived
// from the uptime in the construction probe.
func (fs *Filesystem) StartTime() time.Time { return fs.startTime }

// Resolve fetches the envelope for cap and constructs the matching typed
// node. An envelope tagged "unknown" fails with NotFoundError; any tag other
// than dirnode/filenode fails with InvalidObjectError.
func (fs *Filesystem) Resolve(ctx context.Context, cap capability.Cap) (Node, error) {
	env, err := fs.client.FetchEnvelope(ctx, cap)
	if err != nil {
		return nil, err
	}
	return fs.resolveEnvelope(cap, env)
}

// resolveEnvelope is the single dispatch point from envelope tag to node
// type. Both top-level lookups and directory-listing recursion pass through
// here.
func (fs *Filesystem) resolveEnvelope(cap capability.Cap, env *wapi.Envelope) (Node, error) {
	switch env.Kind {
	case wapi.KindFilenode:
		return newFile(fs, env)
	case wapi.KindDirnode:
		return newDirectory(fs, env)
	case wapi.KindUnknown:
		return nil, ObjectError.Wrap(NotFoundError.New("capability %s does not denote a known object", cap))
	default:
		return nil, ObjectError.Wrap(InvalidObjectError.New("capability %s resolved to unrecognized tag %q", cap, env.Kind))
	}
}

// Directory resolves cap and requires it to be a directory.
func (fs *Filesystem) Directory(ctx context.Context, cap capability.Cap) (*Directory, error) {
	node, err := fs.Resolve(ctx, cap)
	if err != nil {
		return nil, err
	}
	dir, ok := node.(*Directory)
	if !ok {
		return nil, ObjectError.Wrap(TypeMismatchError.New("capability %s is not a directory", cap))
	}
	return dir, nil
}

// File resolves cap and requires it to be a file.
func (fs *Filesystem) File(ctx context.Context, cap capability.Cap) (*File, error) {
	node, err := fs.Resolve(ctx, cap)
	if err != nil {
		return nil, err
	}
	file, ok := node.(*File)
	if !ok {
		return nil, ObjectError.Wrap(TypeMismatchError.New("capability %s is not a file", cap))
	}
	return file, nil
}

// CreateDirectory creates a new mutable directory in the grid and returns
// the node for it. The directory is not linked anywhere yet.
func (fs *Filesystem) CreateDirectory(ctx context.Context) (*Directory, error) {
	writeCap, err := fs.client.CreateDirectory(ctx)
	if err != nil {
		return nil, err
	}
	fs.log.Debug("created mutable directory", zap.String("cap", writeCap.String()))
	return fs.Directory(ctx, writeCap)
}

// Upload pushes immutable content into the grid and returns the File node
// for it. The file is not linked anywhere yet.
func (fs *Filesystem) Upload(ctx context.Context, src io.Reader) (*File, error) {
	if src == nil {
		return nil, UploadError.New("no byte source given")
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, UploadError.New("reading source: %v", err)
	}
	return fs.uploadBytes(ctx, data)
}

// UploadPath uploads the file at the given local path.
func (fs *Filesystem) UploadPath(ctx context.Context, path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, UploadError.New("%q is not a readable file: %v", path, err)
	}
	return fs.uploadBytes(ctx, data)
}

func (fs *Filesystem) uploadBytes(ctx context.Context, data []byte) (*File, error) {
	readCap, err := fs.client.PutImmutable(ctx, data)
	if err != nil {
		return nil, err
	}
	fs.log.Debug("uploaded immutable content",
		zap.Int("size", len(data)),
		zap.String("cap", readCap.String()),
	)
	return fs.File(ctx, readCap)
}

// Attach links obj into dir under name. Validation order: the source must
// expose a read capability, the target must be a writable directory, the
// name is sanitized, and the linked capability is the source's write cap
// only when writable was requested and the source holds one. A writable
// request against a read-only source is a PermissionError, never a silent
// downgrade. The link disables overwrite, so an existing child under the
// same name fails with wapi.AttachError. Returns the sanitized name the
// object was attached under.
func (fs *Filesystem) Attach(ctx context.Context, obj Node, dir *Directory, name string, writable bool) (string, error) {
	if obj == nil || !obj.Caps().Readable() {
		return "", ObjectError.Wrap(InvalidObjectError.New("source object exposes no read capability"))
	}
	if dir == nil {
		return "", ObjectError.Wrap(InvalidObjectError.New("no target directory given"))
	}
	if !dir.Writable() {
		return "", PermissionError.New("target directory is not writable")
	}

	name = SanitizeFilename(name)
	if name == "" {
		return "", ObjectError.Wrap(InvalidObjectError.New("filename sanitizes to an empty string"))
	}

	var linkCap capability.Cap
	if writable {
		if !obj.Writable() {
			return "", PermissionError.New("cannot attach as writable: source holds no write capability")
		}
		linkCap = obj.Caps().Write
	} else {
		linkCap = obj.Caps().ReadCap()
	}

	if err := fs.client.LinkChild(ctx, dir.caps.Write, name, linkCap, false); err != nil {
		if wapi.AttachError.Has(err) {
			return "", ObjectError.Wrap(err)
		}
		return "", err
	}

	fs.log.Debug("attached object",
		zap.String("name", name),
		zap.Bool("writable", writable),
	)
	return name, nil
}
