package httpproxy

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/wherewego/goproxycore/internal/testutil"
)

type fakeDialer struct {
	conn net.Conn
	err  error
}

func (d *fakeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return d.conn, d.err
}

func TestHandlerForwardsRequestAndRewritesURI(t *testing.T) {
	t.Parallel()

	var received string
	ln, cleanup := testutil.StartSingleAcceptServer(t, context.Background(), func(c net.Conn) {
		br := bufio.NewReader(c)
		line, _ := br.ReadString('\n')
		received = line
		for {
			l, err := br.ReadString('\n')
			if err != nil || l == "\r\n" {
				break
			}
		}
		_, _ = c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"))
	})
	defer cleanup()

	up, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	client, server := net.Pipe()
	defer client.Close()

	h := NewHandler(Config{Dialer: &fakeDialer{conn: up}})
	go h.Serve(server, bufio.NewReader(server))

	req := "GET http://example.invalid/path HTTP/1.1\r\nHost: example.invalid\r\nProxy-Connection: keep-alive\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", status)
	}

	time.Sleep(20 * time.Millisecond)
	if !strings.HasPrefix(received, "GET /path HTTP/1.1") {
		t.Fatalf("upstream request line = %q, want relative GET /path", received)
	}
}

func TestHandlerConnectTunnels(t *testing.T) {
	t.Parallel()

	ln, cleanup := testutil.StartSingleAcceptServer(t, context.Background(), func(c net.Conn) {
		buf := make([]byte, 5)
		_, _ = c.Read(buf)
		_, _ = c.Write(buf)
	})
	defer cleanup()

	up, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	client, server := net.Pipe()
	defer client.Close()

	h := NewHandler(Config{Dialer: &fakeDialer{conn: up}})
	go h.Serve(server, bufio.NewReader(server))

	req := "CONNECT example.invalid:443 HTTP/1.1\r\nHost: example.invalid:443\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", status)
	}
	for {
		l, err := br.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if l == "\r\n" {
			break
		}
	}

	payload := []byte("\x16\x03\x01hi")
	if _, err := client.Write(payload); err != nil {
		t.Fatal(err)
	}
	echoed := make([]byte, len(payload))
	total := 0
	for total < len(echoed) {
		n, err := client.Read(echoed[total:])
		total += n
		if err != nil {
			t.Fatal(err)
		}
	}
	if string(echoed) != string(payload) {
		t.Fatalf("echoed = %q, want %q", echoed, payload)
	}
}

func TestHandlerRejectsMalformedConnectTarget(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()

	h := NewHandler(Config{Dialer: &fakeDialer{}})
	go h.Serve(server, bufio.NewReader(server))

	req := "CONNECT not-a-valid-target HTTP/1.1\r\nHost: not-a-valid-target\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 400") {
		t.Fatalf("status line = %q, want 400", status)
	}
}
