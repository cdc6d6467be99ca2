package socks5

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wherewego/goproxycore/internal/conn"
	"github.com/wherewego/goproxycore/internal/relay"
	"github.com/wherewego/goproxycore/internal/stats"
)

// Dialer opens outbound connections on behalf of a SOCKS5 CONNECT command.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// UDPAssociator creates a UDP relay session for a SOCKS5 UDP ASSOCIATE
// command. done is closed when the TCP control connection that requested the
// association terminates; the returned session must tear itself down then.
type UDPAssociator interface {
	Associate(done <-chan struct{}) (port uint16, err error)
}

// Config configures the per-connection SOCKS5 state machine.
type Config struct {
	Dialer         Dialer
	UDPAssociator  UDPAssociator
	Observer       stats.Observer
	ConnectTimeout time.Duration
}

// Handler runs the SOCKS5 state machine (greeting, command, relay) for
// accepted connections.
type Handler struct {
	cfg Config
}

// NewHandler returns a Handler using cfg. A nil Observer is replaced with a
// no-op implementation.
func NewHandler(cfg Config) *Handler {
	if cfg.Observer == nil {
		cfg.Observer = stats.NopObserver{}
	}
	return &Handler{cfg: cfg}
}

// Serve runs the SOCKS5 state machine to completion for one connection. br
// must wrap c and may already hold bytes peeked from c during protocol
// detection (including the 0x05 version byte); any bytes it buffers are
// consumed before further reads reach the wire. Serve always closes c
// before returning.
func (h *Handler) Serve(c net.Conn, br *bufio.Reader) {
	defer c.Close()

	accum, ok := h.readGreeting(c, br)
	if !ok {
		return
	}

	cmd, accum, ok := accumulate(br, accum, DecodeCommand)
	if !ok {
		return
	}

	switch cmd.Cmd {
	case CmdConnect:
		h.handleConnect(c, br, cmd.Addr, accum)
	case CmdUDPAssociate:
		h.handleUDPAssociate(c, cmd.Addr)
	default: // CmdBind
		_, _ = c.Write(EncodeReply(RepCommandNotSupported, ZeroAddr))
	}
}

// accumulate reads from br into accum until decode succeeds, returns
// ErrMalformed, or the connection errors. It returns the decoded value's
// bytes-consumed boundary folded into the returned accum (i.e. accum[0:n] is
// dropped) along with ok=false on any unrecoverable condition.
func accumulate[T any](br *bufio.Reader, accum []byte, decode func([]byte) (T, int, error)) (T, []byte, bool) {
	tmp := make([]byte, 4096)
	for {
		v, n, err := decode(accum)
		if err == nil {
			return v, accum[n:], true
		}
		if !errors.Is(err, ErrIncomplete) {
			var zero T
			return zero, nil, false
		}
		m, rerr := br.Read(tmp)
		if rerr != nil {
			var zero T
			return zero, nil, false
		}
		accum = append(accum, tmp[:m]...)
	}
}

func (h *Handler) readGreeting(c net.Conn, br *bufio.Reader) ([]byte, bool) {
	g, rest, ok := accumulate(br, nil, DecodeGreeting)
	if !ok {
		return nil, false
	}

	if !g.HasMethod(MethodNoAuth) {
		_, _ = c.Write(EncodeGreetingReply(MethodNoAcceptable))
		return nil, false
	}
	if _, err := c.Write(EncodeGreetingReply(MethodNoAuth)); err != nil {
		return nil, false
	}

	return rest, true
}

func (h *Handler) handleConnect(c net.Conn, br *bufio.Reader, target Address, residue []byte) {
	h.cfg.Observer.SOCKS5ConnectionStarted()

	ctx := context.Background()
	if h.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.ConnectTimeout)
		defer cancel()
	}

	up, err := h.cfg.Dialer.DialContext(ctx, "tcp", target.HostPort())
	if err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("socks5 connect %s: %v", target.HostPort(), err))
		_, _ = c.Write(EncodeReply(RepHostUnreachable, ZeroAddr))
		return
	}

	if _, err := c.Write(EncodeReply(RepSucceeded, ZeroAddr)); err != nil {
		_ = up.Close()
		return
	}

	if len(residue) > 0 {
		if _, err := up.Write(residue); err != nil {
			_ = up.Close()
			return
		}
	}

	client := conn.NewBufferedConn(c, br)
	if err := relay.Bidirectional(client, up); err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("socks5 relay %s: %v", target.HostPort(), err))
	}
}

func (h *Handler) handleUDPAssociate(c net.Conn, _ Address) {
	if h.cfg.UDPAssociator == nil {
		_, _ = c.Write(EncodeReply(RepCommandNotSupported, ZeroAddr))
		return
	}

	done := make(chan struct{})
	port, err := h.cfg.UDPAssociator.Associate(done)
	if err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("socks5 udp associate: %v", err))
		_, _ = c.Write(EncodeReply(RepGeneralFailure, ZeroAddr))
		return
	}
	defer close(done)

	bound := Address{Type: ATYPIPv4, IP: net.IPv4zero, Port: port}
	if _, err := c.Write(EncodeReply(RepSucceeded, bound)); err != nil {
		return
	}

	// Keep the control connection open (without consuming CPU) until the
	// client disconnects or errors; the UDP session lives and dies with this
	// read blocking or returning.
	buf := make([]byte, 1)
	for {
		if _, err := c.Read(buf); err != nil {
			return
		}
	}
}
