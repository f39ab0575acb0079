package wapi

import "github.com/zeebo/errs"

var (
	// FilesystemError is the category for control-plane failures: the grid
	// being unreachable, or responding with something that is not a valid
	// WAPI envelope. Callers catch this class to detect a broken session.
	FilesystemError = errs.Class("filesystem")

	// UnreachableError means the request produced no usable HTTP response.
	UnreachableError = errs.Class("grid unreachable")

	// ProtocolError means the grid answered, but not with what the WAPI
	// contract promises (malformed JSON, missing fields, unexpected status).
	ProtocolError = errs.Class("malformed WAPI response")

	// AttachError means a link request was rejected, typically because the
	// target name already exists and overwrite was not requested.
	AttachError = errs.Class("attach failed")
)
