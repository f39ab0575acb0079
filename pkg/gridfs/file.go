package gridfs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sly67/tahoegrid/pkg/capability"
	"github.com/sly67/tahoegrid/pkg/wapi"
)

// File is a file node in the grid. Immutable files never change size or
// capabilities after creation. The read stream is opened lazily on the
// first Read and cached on the node for subsequent partial reads; open a
// fresh node per concurrent reader, one instance does not support
// concurrent reads.
type File struct {
	fs       *Filesystem
	caps     capability.Set
	mutable  bool
	size     int64
	created  time.Time
	modified time.Time

	stream io.ReadCloser
}

// newFile constructs a File from its envelope. Tag "unknown" fails with
// NotFoundError, any other non-filenode tag with TypeMismatchError.
func newFile(fs *Filesystem, env *wapi.Envelope) (*File, error) {
	switch env.Kind {
	case wapi.KindFilenode:
	case wapi.KindUnknown:
		return nil, ObjectError.Wrap(NotFoundError.New("file does not appear to exist"))
	default:
		return nil, ObjectError.Wrap(TypeMismatchError.New("object tagged %q is not a file", env.Kind))
	}

	return &File{
		fs:       fs,
		caps:     env.Caps(),
		mutable:  env.Details.Mutable,
		size:     env.Details.Size,
		created:  env.CreationTime(),
		modified: env.ModificationTime(),
	}, nil
}

// Caps returns the file's capability set.
func (f *File) Caps() capability.Set { return f.caps }

// Mutable reports whether the file's content can be replaced in place.
func (f *File) Mutable() bool { return f.mutable }

// Writable reports whether this node holds a write capability.
func (f *File) Writable() bool { return f.caps.Writable() }

// Size returns the content size in bytes as reported by the envelope.
func (f *File) Size() int64 { return f.size }

// CreationTime returns the link creation time, or the zero time when the
// grid reported none.
func (f *File) CreationTime() time.Time { return f.created }

// ModificationTime returns the link modification time, or the zero time
// when the grid reported none.
func (f *File) ModificationTime() time.Time { return f.modified }

// Read returns up to length bytes from the file's stream, opening the
// stream on first call and continuing from the current position on
// subsequent calls. A negative length drains the remaining content.
// Reading an exhausted stream returns an empty slice, not an error.
func (f *File) Read(ctx context.Context, length int64) ([]byte, error) {
	if f.stream == nil {
		stream, err := f.fs.client.FetchBytes(ctx, f.caps.ReadCap(), nil)
		if err != nil {
			return nil, err
		}
		f.stream = stream
	}

	var src io.Reader = f.stream
	if length >= 0 {
		src = io.LimitReader(f.stream, length)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, wapi.FilesystemError.Wrap(err)
	}
	return data, nil
}

// ReadAll drains the file's remaining content.
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	return f.Read(ctx, -1)
}

// ReadRange fetches length bytes starting at offset over a dedicated
// ranged request. It does not touch the cached sequential stream, so it
// is safe to interleave with Read. Ranges past the end of the file
// return whatever the grid has, possibly nothing.
func (f *File) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	stream, err := f.fs.client.FetchBytes(ctx, f.caps.ReadCap(), &wapi.ByteRange{
		Offset: offset,
		Length: length,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, wapi.FilesystemError.Wrap(err)
	}
	return data, nil
}

// Close releases the cached read stream, if one was opened.
func (f *File) Close() error {
	if f.stream == nil {
		return nil
	}
	err := f.stream.Close()
	f.stream = nil
	return err
}

// AttachTo links this file into target under name. Requires target to be
// writable; asking for a writable link requires this file to hold a write
// capability. Returns the sanitized name used.
func (f *File) AttachTo(ctx context.Context, target *Directory, name string, writable bool) (string, error) {
	return f.fs.Attach(ctx, f, target, name, writable)
}

func (f *File) String() string {
	mutable := "immutable"
	if f.mutable {
		mutable = "mutable"
	}
	state := "read-only"
	if f.Writable() {
		state = "writable"
	}
	return fmt.Sprintf("File(%s, %s, %s)", f.caps.ReadCap(), mutable, state)
}
