package httpproxy

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Target is a dial target split into host and port, independent of whatever
// address-literal form (hostname, IPv4, bracketed IPv6) it was written in.
type Target struct {
	Host string
	Port int
}

// HostPort returns host:port (bracketing IPv6 literals), suitable for
// net.Dial and friends.
func (t Target) HostPort() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// hopByHop is the fixed set of header names scrubbed before forwarding a
// request or response, independent of whatever the Connection header lists.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailers",
	"Upgrade",
}

// splitSchemeAuthority splits an absolute http:// or https:// URI (case
// insensitive scheme match) into its scheme, authority (taken up to the
// first "/" or the end of the string), and the remaining path-and-query. ok
// is false when raw doesn't begin with a recognized scheme.
func splitSchemeAuthority(raw string) (scheme, authority, rest string, ok bool) {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"):
		scheme, raw = "http", raw[len("http://"):]
	case strings.HasPrefix(lower, "https://"):
		scheme, raw = "https", raw[len("https://"):]
	default:
		return "", "", "", false
	}

	if idx := strings.IndexByte(raw, '/'); idx >= 0 {
		return scheme, raw[:idx], raw[idx:], true
	}
	return scheme, raw, "", true
}

// splitAuthorityHostPort splits an authority into host and port, honoring
// bracketed IPv6 literals. port is empty when the authority carries none.
func splitAuthorityHostPort(authority string) (host, port string) {
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return authority, ""
		}
		host = authority[1:end]
		if rest := authority[end+1:]; strings.HasPrefix(rest, ":") {
			port = rest[1:]
		}
		return host, port
	}
	if idx := strings.LastIndexByte(authority, ':'); idx >= 0 {
		return authority[:idx], authority[idx+1:]
	}
	return authority, ""
}

// parseAbsoluteURI parses an absolute http:// or https:// URI (case
// insensitive scheme) into a dial Target plus the request's path-and-query.
// IPv6 literal hosts use bracket notation. The path defaults to "/" when
// absent.
func parseAbsoluteURI(raw string) (Target, string, error) {
	scheme, authority, rest, ok := splitSchemeAuthority(raw)
	if !ok {
		return Target{}, "", fmt.Errorf("not an absolute http(s) uri: %q", raw)
	}

	host, portStr := splitAuthorityHostPort(authority)
	if host == "" {
		return Target{}, "", fmt.Errorf("absolute uri %q has no host", raw)
	}

	port, err := defaultedPort(portStr, scheme)
	if err != nil {
		return Target{}, "", err
	}

	if rest == "" {
		rest = "/"
	}

	return Target{Host: host, Port: port}, rest, nil
}

func defaultedPort(portStr, scheme string) (int, error) {
	if portStr == "" {
		if scheme == "https" {
			return 443, nil
		}
		return 80, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", portStr)
	}
	return port, nil
}

// parseConnectTarget parses a CONNECT request's target, "host:port" or
// "[ipv6]:port". The port must be in 1..65535.
func parseConnectTarget(s string) (Target, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Target{}, fmt.Errorf("parse connect target %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("invalid port in connect target %q", s)
	}
	return Target{Host: host, Port: port}, nil
}

// extractTarget determines the request's dial target, preferring an
// absolute-form request URI and falling back to the Host header with a
// default port of 80.
func extractTarget(r *http.Request) (Target, error) {
	if r.URL != nil && r.URL.IsAbs() {
		target, _, err := parseAbsoluteURI(r.URL.String())
		return target, err
	}

	if r.Host == "" {
		return Target{}, fmt.Errorf("request carries no absolute uri or Host header")
	}
	host, portStr, err := net.SplitHostPort(r.Host)
	if err != nil {
		return Target{Host: r.Host, Port: 80}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("invalid port in Host header %q", r.Host)
	}
	return Target{Host: host, Port: port}, nil
}

// scrubHopByHop removes the fixed hop-by-hop header set plus every header
// named as a comma-separated token in the Connection header, in place.
func scrubHopByHop(h http.Header) {
	if conn := h.Get("Connection"); conn != "" {
		for _, tok := range strings.Split(conn, ",") {
			h.Del(strings.TrimSpace(tok))
		}
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}

// rewriteURIToRelative reduces an absolute URI to its path-and-query; a
// relative URI is returned unchanged. Unlike parseAbsoluteURI, it does not
// validate the authority's port, since all it needs from the URI is where
// the path begins.
func rewriteURIToRelative(raw string) string {
	_, _, rest, ok := splitSchemeAuthority(raw)
	if !ok {
		return raw
	}
	if rest == "" {
		return "/"
	}
	return rest
}
