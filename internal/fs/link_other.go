//go:build !unix

package fs

import (
	"errors"
	"os"
)

func linkUnsupported(err error) bool {
	var le *os.LinkError
	return errors.As(err, &le)
}
