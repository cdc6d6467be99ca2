package dialer

// Package dialer provides the direct outbound dialer used to open the "raw
// TCP upstream" every CONNECT, forward-proxy, and SOCKS5 CONNECT request
// needs: a plain net.Dialer with a connect timeout and keepalive tuning
// applied to the resulting *net.TCPConn.
