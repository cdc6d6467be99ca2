package socks5

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"
)

// AddressType is the SOCKS5 ATYP wire value.
type AddressType byte

const (
	ATYPIPv4   AddressType = 0x01
	ATYPDomain AddressType = 0x03
	ATYPIPv6   AddressType = 0x04
)

// Address is a SOCKS5 destination or bound address: a tagged IPv4/IPv6/Domain
// union plus a port. The tag determines the wire encoding; Host always
// returns the canonical string form used for logging and DNS resolution.
type Address struct {
	Type AddressType
	IP   net.IP // 4 bytes for ATYPIPv4, 16 bytes for ATYPIPv6
	Name string // set only for ATYPDomain
	Port uint16
}

// Host returns the canonical string form of the address: dotted-quad for
// IPv4, colon-separated hex groups (no "::" compression) for IPv6, or the
// domain literal. It never includes the port.
func (a Address) Host() string {
	switch a.Type {
	case ATYPIPv4:
		ip4 := a.IP.To4()
		if ip4 == nil {
			return ""
		}
		return fmt.Sprintf("%d.%d.%d.%d", ip4[0], ip4[1], ip4[2], ip4[3])
	case ATYPIPv6:
		ip16 := a.IP.To16()
		if ip16 == nil {
			return ""
		}
		groups := make([]string, 8)
		for i := range 8 {
			groups[i] = fmt.Sprintf("%x", binary.BigEndian.Uint16(ip16[2*i:2*i+2]))
		}
		return strings.Join(groups, ":")
	case ATYPDomain:
		return a.Name
	default:
		return ""
	}
}

// HostPort returns Host() and Port joined the way net.JoinHostPort would,
// bracketing IPv6 literals.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host(), fmt.Sprintf("%d", a.Port))
}

// decodeAddress reads an ATYP byte followed by the address bytes and a
// big-endian port from buf. It returns the bytes consumed and ErrIncomplete
// if buf does not yet hold a complete address.
func decodeAddress(buf []byte) (Address, int, error) {
	if len(buf) < 1 {
		return Address{}, 0, ErrIncomplete
	}

	atyp := AddressType(buf[0])
	switch atyp {
	case ATYPIPv4:
		const n = 1 + 4 + 2
		if len(buf) < n {
			return Address{}, 0, ErrIncomplete
		}
		ip := net.IP(append(net.IP{}, buf[1:5]...))
		port := binary.BigEndian.Uint16(buf[5:7])
		return Address{Type: ATYPIPv4, IP: ip, Port: port}, n, nil

	case ATYPIPv6:
		const n = 1 + 16 + 2
		if len(buf) < n {
			return Address{}, 0, ErrIncomplete
		}
		ip := net.IP(append(net.IP{}, buf[1:17]...))
		port := binary.BigEndian.Uint16(buf[17:19])
		return Address{Type: ATYPIPv6, IP: ip, Port: port}, n, nil

	case ATYPDomain:
		if len(buf) < 2 {
			return Address{}, 0, ErrIncomplete
		}
		nameLen := int(buf[1])
		n := 2 + nameLen + 2
		if len(buf) < n {
			return Address{}, 0, ErrIncomplete
		}
		raw := buf[2 : 2+nameLen]
		name := ""
		if utf8.Valid(raw) {
			name = string(raw)
		}
		port := binary.BigEndian.Uint16(buf[2+nameLen : n])
		return Address{Type: ATYPDomain, Name: name, Port: port}, n, nil

	default:
		return Address{}, 0, fmt.Errorf("%w: unknown ATYP 0x%02x", ErrMalformed, buf[0])
	}
}

// appendWire appends a's wire encoding (ATYP, address bytes, big-endian port)
// to dst and returns the extended slice.
func (a Address) appendWire(dst []byte) []byte {
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], a.Port)

	switch a.Type {
	case ATYPIPv4:
		dst = append(dst, byte(ATYPIPv4))
		ip4 := a.IP.To4()
		if ip4 == nil {
			ip4 = net.IPv4zero.To4()
		}
		dst = append(dst, ip4...)
	case ATYPIPv6:
		dst = append(dst, byte(ATYPIPv6))
		ip16 := a.IP.To16()
		if ip16 == nil {
			ip16 = net.IPv6zero
		}
		dst = append(dst, ip16...)
	case ATYPDomain:
		dst = append(dst, byte(ATYPDomain))
		dst = append(dst, byte(len(a.Name)))
		dst = append(dst, a.Name...)
	default:
		// Callers construct Address values themselves; an unknown type here
		// is a programmer error. Encode as a zero IPv4 address rather than
		// panic or silently drop the port.
		dst = append(dst, byte(ATYPIPv4), 0, 0, 0, 0)
	}

	return append(dst, portBuf[:]...)
}
