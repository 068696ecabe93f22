package transport

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
)

// Listen opens a TCP listener on addr. With reusePort several processes can listen on the same
// address and the kernel spreads connections among them, on platforms that support SO_REUSEPORT.
func Listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = reusePortControl
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %q", addr)
	}

	return ln, nil
}
