package reload

import (
	"net"
	"strconv"

	"github.com/conneroisu/velto/internal/errors"
)

// ErrPortRangeExhausted is returned by NegotiatePort when no port in the
// range could be bound.
var ErrPortRangeExhausted = errors.NewNetworkError(errors.ErrCodePortRangeExhausted,
	"no free port in live reload range", nil)

// NegotiatePort binds the first free port in [base, base+span) on host. The
// winning listener is returned open so the port cannot be taken between the
// probe and its use. When every port is busy it returns base together with
// ErrPortRangeExhausted.
func NegotiatePort(host string, base, span int) (net.Listener, int, error) {
	for port := base; port < base+span && port <= 65535; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, base, ErrPortRangeExhausted
}
