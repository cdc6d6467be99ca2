package udprelay

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/wherewego/goproxycore/internal/socks5"
	"github.com/wherewego/goproxycore/internal/stats"
)

// Config configures a relay Session.
type Config struct {
	// IdleTimeout tears the session down when no datagram has been observed
	// for this long. Zero disables the idle timer.
	IdleTimeout time.Duration
	// MaxOutboundChannels bounds the number of distinct (targetHost,
	// targetPort) outbound sockets this session will open. Zero disables
	// the limit.
	MaxOutboundChannels int
	Observer            stats.Observer
	Verbose              bool
}

// outboundChannel is one per distinct target within a session: a connected
// datagram socket plus the target address exactly as the client specified
// it, so replies can be re-wrapped with the same ATYP/host/port form the
// client used (not the resolved address).
type outboundChannel struct {
	conn   *net.UDPConn
	origin socks5.Address
}

// Session owns the client-facing datagram socket and every outbound channel
// opened on its behalf.
type Session struct {
	cfg  Config
	conn *net.UDPConn

	mu         sync.Mutex
	clientAddr *net.UDPAddr
	outbound   map[string]*outboundChannel
	closed     bool

	idleTimer *time.Timer
}

// New binds a UDP socket on 0.0.0.0:0 and starts relaying. Call Close when
// the owning TCP control connection terminates.
func New(cfg Config) (*Session, error) {
	if cfg.Observer == nil {
		cfg.Observer = stats.NopObserver{}
	}

	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("udp relay listen: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		conn:     c,
		outbound: make(map[string]*outboundChannel),
	}

	if cfg.IdleTimeout > 0 {
		s.idleTimer = time.AfterFunc(cfg.IdleTimeout, func() { _ = s.Close() })
	}

	cfg.Observer.UDPSessionStarted()
	go s.readClientLoop()

	return s, nil
}

// Port returns the bound client-facing port.
func (s *Session) Port() uint16 {
	return uint16(s.conn.LocalAddr().(*net.UDPAddr).Port) //nolint:gosec // always in range
}

// Close tears the session down: every outbound socket is closed, the map is
// cleared, and the client-facing socket is closed. Safe to call more than
// once or concurrently; only the first call has effect.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	outbound := s.outbound
	s.outbound = nil
	s.mu.Unlock()

	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	for _, oc := range outbound {
		_ = oc.conn.Close()
	}
	err := s.conn.Close()

	s.cfg.Observer.UDPSessionEnded()
	return err
}

func (s *Session) resetIdle() {
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.cfg.IdleTimeout)
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.cfg.Verbose {
		log.Printf(format, args...)
	}
}

// readClientLoop demultiplexes client datagrams by target and forwards each
// payload on the matching outbound channel.
func (s *Session) readClientLoop() {
	buf := make([]byte, 65535)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		s.resetIdle()

		s.mu.Lock()
		if s.clientAddr == nil {
			s.clientAddr = addr
		}
		s.mu.Unlock()

		hdr, hdrLen, err := socks5.DecodeUDPHeader(buf[:n])
		if err != nil {
			s.logf("udp relay: malformed header from %s: %v", addr, err)
			continue
		}
		if hdr.Frag != 0 {
			s.logf("udp relay: dropping fragmented datagram (FRAG=%d) from %s", hdr.Frag, addr)
			continue
		}

		payload := append([]byte(nil), buf[hdrLen:n]...)
		s.forward(hdr.Addr, payload)
	}
}

// forward sends payload to target over this session's outbound channel for
// target, creating one if needed and within the configured bound.
func (s *Session) forward(target socks5.Address, payload []byte) {
	key := target.HostPort()

	s.mu.Lock()
	oc, ok := s.outbound[key]
	full := !ok && s.cfg.MaxOutboundChannels > 0 && len(s.outbound) >= s.cfg.MaxOutboundChannels
	s.mu.Unlock()

	if full {
		s.logf("udp relay: dropping datagram to %s: outbound channel limit reached", key)
		return
	}

	if !ok {
		var err error
		oc, err = s.openOutbound(key, target)
		if err != nil {
			s.logf("udp relay: %v", err)
			return
		}
	}

	if _, err := oc.conn.Write(payload); err != nil {
		s.logf("udp relay: write to %s: %v", key, err)
		return
	}
	s.cfg.Observer.UDPPacketRelayed()
}

// openOutbound resolves and dials target, registering the new channel under
// key unless another goroutine raced it and won, or the session closed, or
// the bound was reached in the meantime.
func (s *Session) openOutbound(key string, target socks5.Address) (*outboundChannel, error) {
	resolved, err := resolveTarget(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", key, err)
	}

	c, err := net.DialUDP("udp", nil, resolved)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", key, err)
	}

	oc := &outboundChannel{conn: c, origin: target}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close()
		return nil, fmt.Errorf("session closed")
	}
	if existing, ok := s.outbound[key]; ok {
		s.mu.Unlock()
		_ = c.Close()
		return existing, nil
	}
	if s.cfg.MaxOutboundChannels > 0 && len(s.outbound) >= s.cfg.MaxOutboundChannels {
		s.mu.Unlock()
		_ = c.Close()
		return nil, fmt.Errorf("outbound channel limit reached for %s", key)
	}
	s.outbound[key] = oc
	s.mu.Unlock()

	go s.outboundReadLoop(oc)

	return oc, nil
}

// outboundReadLoop reads target replies and re-wraps them with oc.origin's
// address form before sending to the remembered client endpoint.
func (s *Session) outboundReadLoop(oc *outboundChannel) {
	buf := make([]byte, 65535)
	for {
		n, err := oc.conn.Read(buf)
		if err != nil {
			return
		}
		s.resetIdle()

		s.mu.Lock()
		clientAddr := s.clientAddr
		s.mu.Unlock()
		if clientAddr == nil {
			continue
		}

		packet := append(socks5.EncodeUDPHeader(oc.origin), buf[:n]...)
		if _, err := s.conn.WriteToUDP(packet, clientAddr); err != nil {
			s.logf("udp relay: write to client %s: %v", clientAddr, err)
		}
	}
}
