//go:build unix

package fs

import (
	"errors"
	"syscall"
)

// linkUnsupported reports whether os.Link failed because the filesystem
// does not support hard links (FAT, exFAT and some network mounts).
func linkUnsupported(err error) bool {
	return errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EOPNOTSUPP) ||
		errors.Is(err, syscall.EXDEV)
}
