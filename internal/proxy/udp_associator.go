package proxy

import (
	"github.com/wherewego/goproxycore/internal/stats"
	"github.com/wherewego/goproxycore/internal/udprelay"
)

// udpAssociator implements socks5.UDPAssociator by opening one udprelay
// Session per SOCKS5 UDP ASSOCIATE command and tying its lifetime to the
// owning control connection's done channel.
type udpAssociator struct {
	cfg Config
	obs stats.Observer
}

func (u *udpAssociator) Associate(done <-chan struct{}) (uint16, error) {
	sess, err := udprelay.New(udprelay.Config{
		IdleTimeout:         u.cfg.UDPRelayIdleTimeout,
		MaxOutboundChannels: u.cfg.MaxUDPOutboundChannels,
		Observer:            u.obs,
		Verbose:             u.cfg.Verbose,
	})
	if err != nil {
		return 0, err
	}

	go func() {
		<-done
		_ = sess.Close()
	}()

	return sess.Port(), nil
}
