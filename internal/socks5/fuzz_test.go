package socks5

import (
	"net"
	"testing"
	"unicode/utf8"
)

// FuzzUDPHeaderRoundTrip checks that EncodeUDPHeader∘DecodeUDPHeader is the
// identity for every valid address form and port value.
func FuzzUDPHeaderRoundTrip(f *testing.F) {
	f.Add(byte(ATYPIPv4), "127.0.0.1", uint16(80))
	f.Add(byte(ATYPIPv6), "::1", uint16(443))
	f.Add(byte(ATYPDomain), "example.invalid", uint16(53))

	f.Fuzz(func(t *testing.T, atyp byte, host string, port uint16) {
		var addr Address
		switch AddressType(atyp) {
		case ATYPIPv4:
			ip := net.ParseIP(host)
			if ip == nil || ip.To4() == nil {
				t.Skip()
			}
			addr = Address{Type: ATYPIPv4, IP: ip.To4(), Port: port}
		case ATYPIPv6:
			ip := net.ParseIP(host)
			if ip == nil || ip.To4() != nil {
				t.Skip()
			}
			addr = Address{Type: ATYPIPv6, IP: ip.To16(), Port: port}
		case ATYPDomain:
			if len(host) > 255 || !utf8.ValidString(host) {
				t.Skip()
			}
			addr = Address{Type: ATYPDomain, Name: host, Port: port}
		default:
			t.Skip()
		}

		wire := EncodeUDPHeader(addr)
		got, n, err := DecodeUDPHeader(wire)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(wire) {
			t.Fatalf("consumed %d, want %d", n, len(wire))
		}
		if got.Addr.Host() != addr.Host() || got.Addr.Port != addr.Port {
			t.Fatalf("got %+v, want %+v", got.Addr, addr)
		}
	})
}

// FuzzCommandRoundTrip checks encode/decode identity across all three
// command values and address forms.
func FuzzCommandRoundTrip(f *testing.F) {
	f.Add(byte(CmdConnect), byte(ATYPIPv4), "10.0.0.1", uint16(8080))
	f.Add(byte(CmdUDPAssociate), byte(ATYPIPv6), "2001:db8::1", uint16(53))
	f.Add(byte(CmdBind), byte(ATYPDomain), "host.invalid", uint16(1))

	f.Fuzz(func(t *testing.T, cmd byte, atyp byte, host string, port uint16) {
		if cmd != CmdConnect && cmd != CmdBind && cmd != CmdUDPAssociate {
			t.Skip()
		}

		var addr Address
		switch AddressType(atyp) {
		case ATYPIPv4:
			ip := net.ParseIP(host)
			if ip == nil || ip.To4() == nil {
				t.Skip()
			}
			addr = Address{Type: ATYPIPv4, IP: ip.To4(), Port: port}
		case ATYPIPv6:
			ip := net.ParseIP(host)
			if ip == nil || ip.To4() != nil {
				t.Skip()
			}
			addr = Address{Type: ATYPIPv6, IP: ip.To16(), Port: port}
		case ATYPDomain:
			if len(host) > 255 || !utf8.ValidString(host) {
				t.Skip()
			}
			addr = Address{Type: ATYPDomain, Name: host, Port: port}
		default:
			t.Skip()
		}

		wire := []byte{Version, cmd, 0x00}
		wire = addr.appendWire(wire)

		got, n, err := DecodeCommand(wire)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(wire) {
			t.Fatalf("consumed %d, want %d", n, len(wire))
		}
		if got.Cmd != cmd || got.Addr.Host() != addr.Host() || got.Addr.Port != addr.Port {
			t.Fatalf("got %+v, want cmd=%v addr=%+v", got, cmd, addr)
		}
	})
}
