package detector

import (
	"bufio"
	"net"
	"net/http"

	"github.com/wherewego/goproxycore/internal/gate"
	"github.com/wherewego/goproxycore/internal/httpproxy"
	"github.com/wherewego/goproxycore/internal/socks5"
	"github.com/wherewego/goproxycore/internal/stats"
)

const socks5VersionByte = 0x05

// Config configures the detecting listener.
type Config struct {
	// Gate bounds the number of simultaneously served connections. Nil
	// disables admission control.
	Gate         *gate.Gate
	HTTPConfig   httpproxy.Config
	SOCKS5Config socks5.Config
	Observer     stats.Observer
}

// Listener accepts connections on an underlying net.Listener and routes
// each one to the HTTP or SOCKS5 state machine based on its first byte.
type Listener struct {
	ln  net.Listener
	cfg Config
}

// NewListener returns a Listener that serves connections accepted from ln.
// A nil Observer is replaced with a no-op implementation.
func NewListener(ln net.Listener, cfg Config) *Listener {
	if cfg.Observer == nil {
		cfg.Observer = stats.NopObserver{}
	}
	return &Listener{ln: ln, cfg: cfg}
}

// Serve accepts connections until ln is closed or Accept otherwise fails,
// at which point it returns the error that stopped it.
func (l *Listener) Serve() error {
	for {
		c, err := l.ln.Accept()
		if err != nil {
			return err
		}
		go l.handle(c)
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func (l *Listener) handle(c net.Conn) {
	br := bufio.NewReader(c)

	first, err := br.Peek(1)
	if err != nil {
		_ = c.Close()
		return
	}
	isSOCKS5 := first[0] == socks5VersionByte

	if l.cfg.Gate != nil {
		if !l.cfg.Gate.Admit() {
			// Gate.Admit already notified the observer of the rejection.
			l.rejectOverflow(c, isSOCKS5)
			return
		}
		// Gate.Admit already notified the observer of the acceptance.
		defer l.cfg.Gate.Release()
	} else {
		l.cfg.Observer.Accepted()
		defer l.cfg.Observer.Disconnected()
	}

	if isSOCKS5 {
		socks5.NewHandler(l.cfg.SOCKS5Config).Serve(c, br)
		return
	}
	httpproxy.NewHandler(l.cfg.HTTPConfig).Serve(c, br)
}

// rejectOverflow turns away a connection that the concurrency gate refused
// admission to: a 503 for HTTP, a plain close (seen by the client as
// TCP RST/FIN) for SOCKS5.
func (l *Listener) rejectOverflow(c net.Conn, isSOCKS5 bool) {
	if !isSOCKS5 {
		httpproxy.WriteStatus(c, http.StatusServiceUnavailable, "Service Unavailable")
	}
	_ = c.Close()
}
