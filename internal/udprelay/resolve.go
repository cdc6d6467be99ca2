package udprelay

import (
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/wherewego/goproxycore/internal/socks5"
)

// resolveTarget turns a client-supplied SOCKS5 address into a dialable
// net.UDPAddr, resolving domain names via resolveDomain.
func resolveTarget(addr socks5.Address) (*net.UDPAddr, error) {
	switch addr.Type {
	case socks5.ATYPIPv4, socks5.ATYPIPv6:
		return &net.UDPAddr{IP: addr.IP, Port: int(addr.Port)}, nil
	case socks5.ATYPDomain:
		ip, err := resolveDomain(addr.Name)
		if err != nil {
			return nil, err
		}
		return &net.UDPAddr{IP: ip, Port: int(addr.Port)}, nil
	default:
		return nil, fmt.Errorf("unsupported address type %v", addr.Type)
	}
}

// resolveDomain resolves name to a single IP address. It prefers a direct
// query against the system's configured resolver via miekg/dns, since that
// avoids cgo and lets the relay control the query timeout directly; it falls
// back to net.LookupIP when /etc/resolv.conf can't be read or the query
// fails, so resolution still works on systems without a usable resolv.conf
// (e.g. inside minimal containers relying on NSS or a hosts-file override).
func resolveDomain(name string) (net.IP, error) {
	if ip, err := resolveViaDNS(name); err == nil {
		return ip, nil
	}
	return resolveViaLookup(name)
}

func resolveViaDNS(name string) (net.IP, error) {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return nil, fmt.Errorf("no usable resolver config: %w", err)
	}

	client := new(dns.Client)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	server := net.JoinHostPort(conf.Servers[0], conf.Port)

	resp, _, err := client.Exchange(msg, server)
	if err != nil {
		return nil, fmt.Errorf("dns exchange: %w", err)
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("no A record for %s", name)
}

func resolveViaLookup(name string) (net.IP, error) {
	ips, err := net.LookupIP(name)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return ips[0], nil
}
