package mount

import (
	"github.com/sly67/tahoegrid/pkg/gridfs"
)

// Detect resolves the mount facility available on this host. cgofuse
// covers every supported platform (libfuse on Unix, WinFSP on Windows),
// so detection currently always yields it; callers should still handle a
// nil result, which Directory.Mount turns into a DependencyError.
func Detect() gridfs.MountFacility {
	facility, err := New(Config{})
	if err != nil {
		return nil
	}
	return facility
}
