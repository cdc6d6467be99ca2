package socks5

import (
	"bytes"
	"net"
	"testing"
)

func TestAddressWireRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr Address
	}{
		{"ipv4", Address{Type: ATYPIPv4, IP: net.IPv4(127, 0, 0, 1).To4(), Port: 80}},
		{"ipv4 zero", Address{Type: ATYPIPv4, IP: net.IPv4zero.To4(), Port: 0}},
		{"ipv6", Address{Type: ATYPIPv6, IP: net.ParseIP("2001:db8::1"), Port: 443}},
		{"domain", Address{Type: ATYPDomain, Name: "example.invalid", Port: 53}},
		{"domain empty", Address{Type: ATYPDomain, Name: "", Port: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wire := tt.addr.appendWire(nil)
			got, n, err := decodeAddress(wire)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n != len(wire) {
				t.Fatalf("consumed %d, want %d", n, len(wire))
			}
			if got.Type != tt.addr.Type || got.Port != tt.addr.Port {
				t.Fatalf("got %+v, want %+v", got, tt.addr)
			}
			if got.Host() != tt.addr.Host() {
				t.Fatalf("Host() = %q, want %q", got.Host(), tt.addr.Host())
			}
		})
	}
}

func TestDecodeAddressIncompleteThenComplete(t *testing.T) {
	t.Parallel()

	addr := Address{Type: ATYPDomain, Name: "example.invalid", Port: 443}
	wire := addr.appendWire(nil)

	for i := range len(wire) {
		if _, _, err := decodeAddress(wire[:i]); err != ErrIncomplete {
			t.Fatalf("prefix %d: err = %v, want ErrIncomplete", i, err)
		}
	}

	got, n, err := decodeAddress(wire)
	if err != nil {
		t.Fatalf("decode complete: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if got.Name != addr.Name {
		t.Fatalf("got %q, want %q", got.Name, addr.Name)
	}
}

func TestIPv6HostNoCompression(t *testing.T) {
	t.Parallel()

	addr := Address{Type: ATYPIPv6, IP: net.ParseIP("2001:db8::1"), Port: 1}
	got := addr.Host()
	want := "2001:db8:0:0:0:0:0:1"
	if got != want {
		t.Fatalf("Host() = %q, want %q (no :: compression)", got, want)
	}
}

func TestDomainInvalidUTF8DecodesEmpty(t *testing.T) {
	t.Parallel()

	wire := []byte{byte(ATYPDomain), 2, 0xff, 0xfe, 0, 80}
	got, n, err := decodeAddress(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if got.Name != "" {
		t.Fatalf("Name = %q, want empty for invalid UTF-8", got.Name)
	}
}

func TestGreetingRoundTrip(t *testing.T) {
	t.Parallel()

	for _, methods := range [][]byte{{0x00}, {0x00, 0x02}, {0x01, 0x02, 0x03}} {
		wire := append([]byte{Version, byte(len(methods))}, methods...)
		g, n, err := DecodeGreeting(wire)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(wire) {
			t.Fatalf("consumed %d, want %d", n, len(wire))
		}
		if !bytes.Equal(g.Methods, methods) {
			t.Fatalf("methods = %v, want %v", g.Methods, methods)
		}
	}
}

func TestGreetingIncomplete(t *testing.T) {
	t.Parallel()

	full := []byte{Version, 2, 0x00, 0x02}
	for i := range len(full) - 1 {
		if _, _, err := DecodeGreeting(full[:i]); err != ErrIncomplete {
			t.Fatalf("prefix %d: err = %v, want ErrIncomplete", i, err)
		}
	}
}

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()

	for _, cmd := range []byte{CmdConnect, CmdBind, CmdUDPAssociate} {
		for _, addr := range []Address{
			{Type: ATYPIPv4, IP: net.IPv4(10, 0, 0, 1).To4(), Port: 8080},
			{Type: ATYPIPv6, IP: net.ParseIP("::1"), Port: 443},
			{Type: ATYPDomain, Name: "example.invalid", Port: 53},
		} {
			wire := []byte{Version, cmd, 0x00}
			wire = addr.appendWire(wire)

			got, n, err := DecodeCommand(wire)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n != len(wire) {
				t.Fatalf("consumed %d, want %d", n, len(wire))
			}
			if got.Cmd != cmd {
				t.Fatalf("cmd = %v, want %v", got.Cmd, cmd)
			}
			if got.Addr.Host() != addr.Host() || got.Addr.Port != addr.Port {
				t.Fatalf("addr = %+v, want %+v", got.Addr, addr)
			}
		}
	}
}

func TestUDPHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	for _, addr := range []Address{
		{Type: ATYPIPv4, IP: net.IPv4(127, 0, 0, 1).To4(), Port: 53},
		{Type: ATYPIPv6, IP: net.ParseIP("::1"), Port: 53},
		{Type: ATYPDomain, Name: "dns.invalid", Port: 53},
	} {
		payload := []byte("hello world")
		wire := append(EncodeUDPHeader(addr), payload...)

		hdr, n, err := DecodeUDPHeader(wire)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if hdr.Frag != 0 {
			t.Fatalf("frag = %d, want 0", hdr.Frag)
		}
		if !bytes.Equal(wire[n:], payload) {
			t.Fatalf("payload = %q, want %q", wire[n:], payload)
		}
		if hdr.Addr.Host() != addr.Host() || hdr.Addr.Port != addr.Port {
			t.Fatalf("addr = %+v, want %+v", hdr.Addr, addr)
		}
	}
}

func TestUDPHeaderMalformedRSV(t *testing.T) {
	t.Parallel()

	wire := []byte{0x00, 0x01, 0x00, byte(ATYPIPv4), 0, 0, 0, 0, 0, 0}
	if _, _, err := DecodeUDPHeader(wire); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestEncodeReplyZeroAddr(t *testing.T) {
	t.Parallel()

	wire := EncodeReply(RepHostUnreachable, ZeroAddr)
	want := []byte{Version, RepHostUnreachable, 0x00, byte(ATYPIPv4), 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire = %v, want %v", wire, want)
	}
}
