// Package socks5 implements the SOCKS5 (RFC 1928) wire framing and the
// per-connection SOCKS5 state machine: greeting, command, and relay.
//
// Decoding is non-destructive pending success: every Decode* function reads
// from a byte slice and returns (value, bytesConsumed, error); it never
// mutates or assumes ownership of its input, and ErrIncomplete signals that
// the caller should read more bytes and retry rather than that the input is
// malformed. Encoding is bit-exact to RFC 1928 sections 3 through 7.
//
// Only the no-auth method (0x00) is supported, matching this proxy's scope:
// no SOCKS4, no username/password negotiation, and CMD=BIND is accepted as a
// well-formed request but always answered with command-not-supported.
package socks5
