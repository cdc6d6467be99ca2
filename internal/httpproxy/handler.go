package httpproxy

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wherewego/goproxycore/internal/conn"
	"github.com/wherewego/goproxycore/internal/relay"
	"github.com/wherewego/goproxycore/internal/stats"
)

// Dialer opens outbound connections on behalf of CONNECT tunnels and forward
// requests.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures the per-connection HTTP state machine.
type Config struct {
	Dialer         Dialer
	Observer       stats.Observer
	ConnectTimeout time.Duration
	// IdleTimeout bounds how long Serve waits for the next request head on
	// a kept-alive connection. Zero disables the deadline.
	IdleTimeout time.Duration
}

// Handler runs the HTTP forward-proxy state machine for accepted
// connections.
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

// Serve reads and serves HTTP requests off c until the connection closes,
// becomes a CONNECT tunnel, or a request can't be parsed. br must wrap c and
// may already hold bytes peeked from c during protocol detection; those are
// parsed as the start of the first request. Serve always
// closes c before returning, except when it has handed c off to
// relay.Bidirectional for a CONNECT tunnel (which closes it itself).
func (h *Handler) Serve(c net.Conn, br *bufio.Reader) {
	for {
		if h.cfg.IdleTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		}
		req, err := http.ReadRequest(br)
		if err != nil {
			_ = c.Close()
			return
		}
		if h.cfg.IdleTimeout > 0 {
			_ = c.SetReadDeadline(time.Time{})
		}

		if strings.EqualFold(req.Method, http.MethodConnect) {
			h.handleConnect(c, br, req)
			return
		}

		if !h.handleForward(c, req) {
			_ = c.Close()
			return
		}
	}
}

func (h *Handler) dialContext() context.Context {
	return context.Background()
}

func (h *Handler) connectContext() (context.Context, context.CancelFunc) {
	ctx := h.dialContext()
	if h.cfg.ConnectTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.cfg.ConnectTimeout)
}

// handleConnect dials target and, on success, tunnels raw bytes
// bidirectionally between the client and the upstream. c is always closed
// by the time this returns, either directly or via the relay.
func (h *Handler) handleConnect(c net.Conn, br *bufio.Reader, req *http.Request) {
	target, err := parseConnectTarget(req.Host)
	if err != nil {
		WriteStatus(c, http.StatusBadRequest, "Bad Request")
		_ = c.Close()
		return
	}

	ctx, cancel := h.connectContext()
	defer cancel()

	up, err := h.cfg.Dialer.DialContext(ctx, "tcp", target.HostPort())
	if err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("http connect %s: %v", target.HostPort(), err))
		WriteStatus(c, http.StatusBadGateway, "Bad Gateway")
		_ = c.Close()
		return
	}

	// The explicit Content-Length: 0 is required: without it the response
	// would be framed for chunked transfer, and a client that then speaks
	// TLS over the tunnel would have its handshake corrupted by a trailing
	// "0\r\n\r\n" sentinel injected into the stream.
	if _, err := c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")); err != nil {
		_ = up.Close()
		_ = c.Close()
		return
	}

	client := conn.NewBufferedConn(c, br)
	if err := relay.Bidirectional(client, up); err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("http connect relay %s: %v", target.HostPort(), err))
	}
}

// handleForward proxies one non-CONNECT request/response pair to target and
// reports whether the client connection should be kept open for another
// request.
func (h *Handler) handleForward(c net.Conn, req *http.Request) bool {
	target, err := extractTarget(req)
	if err != nil {
		WriteStatus(c, http.StatusBadRequest, "Bad Request")
		return false
	}

	relURI := rewriteURIToRelative(req.URL.String())
	newURL, err := url.Parse(relURI)
	if err != nil {
		WriteStatus(c, http.StatusBadRequest, "Bad Request")
		return false
	}
	req.URL = newURL
	req.RequestURI = ""
	if req.Host == "" {
		req.Host = target.HostPort()
	}
	scrubHopByHop(req.Header)

	ctx, cancel := h.connectContext()
	defer cancel()

	up, err := h.cfg.Dialer.DialContext(ctx, "tcp", target.HostPort())
	if err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("http forward dial %s: %v", target.HostPort(), err))
		WriteStatus(c, http.StatusBadGateway, "Bad Gateway")
		return false
	}
	defer up.Close()

	if err := req.Write(up); err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("http forward write %s: %v", target.HostPort(), err))
		WriteStatus(c, http.StatusBadGateway, "Bad Gateway")
		return false
	}

	upBr := bufio.NewReader(up)
	resp, err := http.ReadResponse(upBr, req)
	if err != nil {
		h.cfg.Observer.Failed(fmt.Sprintf("http forward read %s: %v", target.HostPort(), err))
		WriteStatus(c, http.StatusBadGateway, "Bad Gateway")
		return false
	}
	scrubHopByHop(resp.Header)

	if err := resp.Write(c); err != nil {
		_ = resp.Body.Close()
		return false
	}
	_ = resp.Body.Close()

	return true
}

// WriteStatus writes a minimal, self-contained HTTP response with a
// plain-text body: status line, Content-Type, Connection: close, and
// Content-Length, so it needs no further framing help from net/http. Used
// for error replies and, by the caller that runs the concurrency gate, for
// the 503-on-overflow response.
func WriteStatus(c net.Conn, status int, text string) {
	body := text + "\n"
	_, _ = fmt.Fprintf(c,
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\nContent-Length: %d\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)
}
