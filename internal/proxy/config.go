package proxy

import (
	"net"
	"time"

	"github.com/wherewego/goproxycore/internal/dialer"
)

// Config configures a Server.
type Config struct {
	Dialer    dialer.Dialer
	KeepAlive net.KeepAliveConfig

	// ConnectTimeout bounds CONNECT/forward-proxy/SOCKS5 upstream dials.
	ConnectTimeout time.Duration
	// IdleTimeout bounds how long an HTTP-mode client connection may sit
	// between requests before being closed.
	IdleTimeout time.Duration

	// MaxConcurrentConnections bounds simultaneously served connections.
	// Zero disables the concurrency gate.
	MaxConcurrentConnections int
	// MaxRecentErrors is the error-ring capacity for stats.Counters.
	// NewServer does not read it; the caller passes it to stats.NewCounters.
	MaxRecentErrors int

	// UDPRelayIdleTimeout tears a UDP ASSOCIATE session down after this
	// long without any datagram. Zero disables the idle timer.
	UDPRelayIdleTimeout time.Duration
	// MaxUDPOutboundChannels bounds distinct targets per UDP session. Zero
	// disables the limit.
	MaxUDPOutboundChannels int

	Verbose bool
}
