package gridfs

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/sly67/tahoegrid/pkg/capability"
	"github.com/sly67/tahoegrid/pkg/wapi"
)

// Directory is a directory node in the grid. Its children map is built
// exactly once per resolution from the one level of child envelopes the
// grid embeds in a directory listing; no per-child fetch is issued. The map
// goes stale when the directory is mutated elsewhere; Refresh re-resolves.
//
// A Directory is not synchronized: concurrent use of one instance must be
// serialized by the caller. Distinct instances for the same capability may
// coexist freely.
type Directory struct {
	fs      *Filesystem
	caps    capability.Set
	mutable bool

	// populated is false for directories materialized from an embedded
	// child envelope, which carries no children of its own. Children
	// populates on first use.
	populated bool
	children  map[string]Node
}

// newDirectory constructs a Directory from its envelope. Tag "unknown"
// fails with NotFoundError, any other non-dirnode tag with
// TypeMismatchError. A malformed child envelope fails the whole resolution
// rather than silently omitting the child.
func newDirectory(fs *Filesystem, env *wapi.Envelope) (*Directory, error) {
	switch env.Kind {
	case wapi.KindDirnode:
	case wapi.KindUnknown:
		return nil, ObjectError.Wrap(NotFoundError.New("directory does not appear to exist"))
	default:
		return nil, ObjectError.Wrap(TypeMismatchError.New("object tagged %q is not a directory", env.Kind))
	}

	d := &Directory{
		fs:      fs,
		caps:    env.Caps(),
		mutable: env.Details.Mutable,
	}

	// A directly fetched listing always carries a children map (possibly
	// empty); an embedded child envelope never does.
	if env.Details.Children != nil {
		if err := d.populate(env.Details.Children); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Directory) populate(children map[string]wapi.Envelope) error {
	resolved := make(map[string]Node, len(children))
	for name, childEnv := range children {
		childEnv := childEnv
		childCap := childEnv.Caps().Strongest()
		node, err := d.fs.resolveEnvelope(childCap, &childEnv)
		if err != nil {
			return ObjectError.Wrap(fmt.Errorf("child %q: %w", name, err))
		}
		resolved[name] = node
	}
	d.children = resolved
	d.populated = true
	return nil
}

// Caps returns the directory's capability set.
func (d *Directory) Caps() capability.Set { return d.caps }

// Mutable reports whether the directory's contents can change in place.
func (d *Directory) Mutable() bool { return d.mutable }

// Writable reports whether this node holds a write capability.
func (d *Directory) Writable() bool { return d.caps.Writable() }

// Children returns the mapping from child name to node, resolving the
// directory's own listing first if this node was materialized from a parent
// listing and never traversed. The result reflects the grid as of the last
// resolution; it is not updated by grid-side mutation until Refresh.
func (d *Directory) Children(ctx context.Context) (map[string]Node, error) {
	if !d.populated {
		if err := d.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return d.children, nil
}

// Child returns the named child, or NotFoundError if the listing has no
// such entry.
func (d *Directory) Child(ctx context.Context, name string) (Node, error) {
	children, err := d.Children(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := children[name]
	if !ok {
		return nil, ObjectError.Wrap(NotFoundError.New("no child named %q", name))
	}
	return node, nil
}

// ChildNames returns the sorted child names of the directory.
func (d *Directory) ChildNames(ctx context.Context) ([]string, error) {
	children, err := d.Children(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Refresh re-resolves the directory's own envelope and rebuilds the
// children map from scratch, discarding the previous one. The capability
// set is superseded, never mutated in place.
func (d *Directory) Refresh(ctx context.Context) error {
	env, err := d.fs.client.FetchEnvelope(ctx, d.caps.Strongest())
	if err != nil {
		return err
	}
	fresh, err := newDirectory(d.fs, env)
	if err != nil {
		return err
	}
	if !fresh.populated {
		// The grid answered with an envelope without a listing.
		return ObjectError.Wrap(InvalidObjectError.New("directory listing carried no children map"))
	}
	d.caps = fresh.caps
	d.mutable = fresh.mutable
	d.children = fresh.children
	d.populated = true
	return nil
}

// CreateSubdirectory creates a new mutable directory in the grid and
// attaches it under the sanitized name as a writable child of this
// directory. The receiver's children map is not updated; call Refresh to
// observe the new entry.
func (d *Directory) CreateSubdirectory(ctx context.Context, name string) (*Directory, error) {
	sub, err := d.fs.CreateDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := sub.AttachTo(ctx, d, name, true); err != nil {
		return nil, err
	}
	return sub, nil
}

// Upload pushes content from src into the grid and attaches the resulting
// file under name. An empty name is derived from the source when it is a
// named stream such as *os.File, and synthesized randomly otherwise; a
// given name that sanitizes to nothing fails with UploadError before any
// bytes are sent. The receiver's children map is not updated; call Refresh
// to observe the new entry.
func (d *Directory) Upload(ctx context.Context, src io.Reader, name string) (*File, error) {
	if src == nil {
		return nil, UploadError.New("no byte source given")
	}
	if name == "" {
		if named, ok := src.(interface{ Name() string }); ok {
			name = SanitizeFilename(filepath.Base(named.Name()))
		}
		if name == "" {
			name = randomFilename()
		}
	} else if SanitizeFilename(name) == "" {
		return nil, UploadError.New("filename %q sanitizes to an empty string", name)
	}

	file, err := d.fs.Upload(ctx, src)
	if err != nil {
		return nil, err
	}
	if _, err := file.AttachTo(ctx, d, name, false); err != nil {
		return nil, err
	}
	return file, nil
}

// UploadPath uploads the file at the given local path, deriving the attach
// name from its basename when name is empty.
func (d *Directory) UploadPath(ctx context.Context, path, name string) (*File, error) {
	if name == "" {
		name = SanitizeFilename(filepath.Base(path))
		if name == "" {
			name = randomFilename()
		}
	} else if SanitizeFilename(name) == "" {
		return nil, UploadError.New("filename %q sanitizes to an empty string", name)
	}
	file, err := d.fs.UploadPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := file.AttachTo(ctx, d, name, false); err != nil {
		return nil, err
	}
	return file, nil
}

// AttachTo links this directory into target under name. Requires target to
// be writable; asking for a writable link requires this directory to hold a
// write capability. Returns the sanitized name used.
func (d *Directory) AttachTo(ctx context.Context, target *Directory, name string, writable bool) (string, error) {
	return d.fs.Attach(ctx, d, target, name, writable)
}

// Mount exposes this directory at a native mount point through the given
// facility. A nil facility fails with DependencyError; a facility runtime
// failure surfaces as MountError.
func (d *Directory) Mount(ctx context.Context, mountpoint string, facility MountFacility) error {
	if facility == nil {
		return DependencyError.New("no mount facility is available on this host")
	}
	if err := facility.Serve(ctx, d, mountpoint); err != nil {
		return MountError.Wrap(err)
	}
	return nil
}

func (d *Directory) String() string {
	state := "read-only"
	if d.Writable() {
		state = "writable"
	}
	return fmt.Sprintf("Directory(%s, %s)", d.caps.ReadCap(), state)
}

// MountFacility is the host-filesystem exposure collaborator. It is
// resolved once at process start (see pkg/mount.Detect) and passed in
// explicitly.
type MountFacility interface {
	// Name identifies the facility, e.g. "cgofuse".
	Name() string
	// Serve exposes dir at mountpoint and blocks until ctx is cancelled or
	// the facility fails.
	Serve(ctx context.Context, dir *Directory, mountpoint string) error
}
