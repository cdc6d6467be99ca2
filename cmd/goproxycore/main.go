package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/wherewego/goproxycore/internal/conn"
	"github.com/wherewego/goproxycore/internal/dialer"
	"github.com/wherewego/goproxycore/internal/proxy"
	"github.com/wherewego/goproxycore/internal/stats"
)

// Reduce GC overhead by setting a minimum GC heap size; GOGC+GOMEMLIMIT
// can't express this. This only allocates virtual memory, not RSS. Ignore
// it in memory profiles.
var (
	ballast = make([]byte, 0, 25_000_000)
	_       = ballast
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen = pflag.String("listen", "127.0.0.1:8080", "Listen address for the combined HTTP+SOCKS5 proxy")

		connectTimeout         = pflag.Duration("connect-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		idleTimeout            = pflag.Duration("idle-timeout", 4*time.Minute, "Timeout for idle HTTP proxy connections between requests")
		maxConcurrentConns     = pflag.Int("max-connections", 1000, "Maximum simultaneously served connections. Zero disables the limit.")
		maxRecentErrors        = pflag.Int("max-recent-errors", 100, "Number of recent per-connection errors retained for diagnostics")
		udpRelayIdleTimeout    = pflag.Duration("udp-idle-timeout", 2*time.Minute, "Timeout tearing down a SOCKS5 UDP ASSOCIATE session after no traffic. Zero disables the timer.")
		maxUDPOutboundChannels = pflag.Int("udp-max-targets", 256, "Maximum distinct UDP targets per ASSOCIATE session. Zero disables the limit.")
		tcpKeepAlive           = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose                = pflag.Bool("verbose", false, "Enable per-connection error logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	dl := dialer.New(dialer.Config{
		DialTimeout: *connectTimeout,
		KeepAlive:   ka,
	})

	cfg := proxy.Config{
		Dialer:                   dl,
		KeepAlive:                ka,
		ConnectTimeout:           *connectTimeout,
		IdleTimeout:              *idleTimeout,
		MaxConcurrentConnections: *maxConcurrentConns,
		MaxRecentErrors:          *maxRecentErrors,
		UDPRelayIdleTimeout:      *udpRelayIdleTimeout,
		MaxUDPOutboundChannels:   *maxUDPOutboundChannels,
		Verbose:                  *verbose,
	}

	counters := stats.NewCounters(*maxRecentErrors)

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := conn.ListenTCP("tcp", *listen, ka)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := proxy.NewServer(ln, cfg, counters)
	context.AfterFunc(ctx, func() {
		_ = srv.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	log.Printf("proxy listening on %s", *listen)

	err = g.Wait()

	log.Print("shutting down")
	return err
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
