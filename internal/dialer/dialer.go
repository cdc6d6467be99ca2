package dialer

import (
	"context"
	"net"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New returns the direct outbound Dialer used to open the upstream
// connection for CONNECT, forward-proxy, and SOCKS5 CONNECT requests.
func New(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}
