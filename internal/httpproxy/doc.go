// Package httpproxy implements the HTTP forward-proxy state machine: CONNECT
// tunneling and plain forward (absolute-URI) proxying, both built on
// net/http's request/response framing rather than a hand-rolled parser,
// since HTTP/1.1's header and chunked-body rules are exactly what net/http
// already gets right.
//
// A connection alternates between reading one request head with
// http.ReadRequest and either tunneling raw bytes (CONNECT) or forwarding a
// rewritten request/response pair to an upstream (forward mode) before
// looping to read the next request on the same connection.
package httpproxy
