// Package proxy wires the detector, HTTP and SOCKS5 state machines, the
// concurrency gate, and UDP relay sessions into a single dual-protocol
// forwarding proxy server listening on one port.
package proxy
