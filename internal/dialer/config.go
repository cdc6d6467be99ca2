package dialer

import (
	"net"
	"time"
)

// Config configures the direct outbound dialer.
type Config struct {
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig
}
