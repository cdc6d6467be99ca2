package relay

import (
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// halfCloser is implemented by *net.TCPConn and *net.UnixConn; it lets one
// direction of a full-duplex connection be shut down without closing the
// other.
type halfCloser interface {
	CloseWrite() error
}

// Bidirectional copies data between left and right until both directions
// have reached EOF or either side errors, then closes both connections.
//
// It returns the first non-nil, non-EOF error encountered on either side, if
// any.
func Bidirectional(left, right net.Conn) error {
	var (
		g    errgroup.Group
		once sync.Once
	)

	closeBoth := func() {
		once.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}

	direction := func(dst, src net.Conn) error {
		_, err := io.Copy(dst, src)
		if err != nil && err != io.EOF {
			closeBoth()
			return err
		}
		halfClose(dst)
		return nil
	}

	g.Go(func() error { return direction(right, left) })
	g.Go(func() error { return direction(left, right) })
	err := g.Wait()

	closeBoth()

	return err
}

// halfClose shuts down the write side of conn if it supports it, otherwise
// falls back to a full close.
func halfClose(conn net.Conn) {
	if hc, ok := conn.(halfCloser); ok {
		_ = hc.CloseWrite()
		return
	}
	_ = conn.Close()
}
