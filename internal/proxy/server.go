package proxy

import (
	"net"

	"github.com/wherewego/goproxycore/internal/detector"
	"github.com/wherewego/goproxycore/internal/gate"
	"github.com/wherewego/goproxycore/internal/httpproxy"
	"github.com/wherewego/goproxycore/internal/socks5"
	"github.com/wherewego/goproxycore/internal/stats"
)

// Server is the single-port dual-protocol forwarding proxy: a detecting
// listener backed by the HTTP and SOCKS5 state machines, a shared
// concurrency gate, and per-connection UDP relay sessions.
type Server struct {
	cfg Config
	obs stats.Observer
	dl  *detector.Listener
}

// NewServer builds a Server that will serve connections accepted from ln. A
// nil Observer is replaced with a no-op implementation.
func NewServer(ln net.Listener, cfg Config, obs stats.Observer) *Server {
	if obs == nil {
		obs = stats.NopObserver{}
	}

	var g *gate.Gate
	if cfg.MaxConcurrentConnections > 0 {
		g = gate.New(cfg.MaxConcurrentConnections, obs)
	}

	dcfg := detector.Config{
		Gate:     g,
		Observer: obs,
		HTTPConfig: httpproxy.Config{
			Dialer:         cfg.Dialer,
			Observer:       obs,
			ConnectTimeout: cfg.ConnectTimeout,
			IdleTimeout:    cfg.IdleTimeout,
		},
		SOCKS5Config: socks5.Config{
			Dialer:         cfg.Dialer,
			Observer:       obs,
			ConnectTimeout: cfg.ConnectTimeout,
			UDPAssociator:  &udpAssociator{cfg: cfg, obs: obs},
		},
	}

	return &Server{cfg: cfg, obs: obs, dl: detector.NewListener(ln, dcfg)}
}

// Serve accepts and serves connections until the listener is closed.
func (s *Server) Serve() error {
	return s.dl.Serve()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.dl.Close()
}
