// Package conn provides shared connection plumbing: a keepalive-aware TCP
// listener used by the dual-protocol listener.
package conn
