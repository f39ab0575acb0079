package gridfs

import "github.com/zeebo/errs"

var (
	// ObjectError is the category for failures resolving or linking grid
	// objects: a capability that does not resolve, resolves to an
	// unexpected type, or fails validity checks during attach.
	ObjectError = errs.Class("object")

	// NotFoundError means the grid tagged the envelope "unknown": the
	// capability does not denote an object this client can see.
	NotFoundError = errs.Class("object not found")

	// InvalidObjectError means the envelope carried a tag this client does
	// not recognize, or an attach source without a usable read capability.
	InvalidObjectError = errs.Class("invalid object")

	// TypeMismatchError means a capability resolved to a different object
	// type than the caller asked for.
	TypeMismatchError = errs.Class("type mismatch")

	// UploadError means an upload had neither a usable byte source nor a
	// way to determine a filename.
	UploadError = errs.Class("upload")

	// PermissionError means a write was requested against a read-only
	// capability or directory.
	PermissionError = errs.Class("permission denied")

	// DependencyError means no mount facility is available on this host.
	DependencyError = errs.Class("mount facility unavailable")

	// MountError means the mount facility reported a runtime failure.
	MountError = errs.Class("mount")
)
