// Package detector implements the per-connection protocol detector and
// accept loop: it peeks a fresh connection's first byte to decide whether
// it is SOCKS5 (0x05) or HTTP, applies the concurrency gate, and dispatches
// to the matching state machine without losing or re-reading the peeked
// byte.
package detector
