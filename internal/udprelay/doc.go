// Package udprelay implements the SOCKS5 UDP ASSOCIATE relay session: one
// client-facing datagram socket multiplexed, by target, across a bounded set
// of outbound datagram sockets.
//
// A Session is anchored to a SOCKS5 TCP control connection: it is created
// when that connection issues UDP ASSOCIATE and is torn down when the
// control connection closes (the caller is responsible for calling Close
// when that happens) or when its own idle timer fires.
package udprelay
