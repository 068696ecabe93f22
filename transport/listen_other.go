//go:build !unix

package transport

import (
	"syscall"

	"github.com/cockroachdb/errors"
)

func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return errors.New("SO_REUSEPORT is not supported on this platform")
}
