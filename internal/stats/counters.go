package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// ErrorRecord is a single reported error, timestamped when it was observed.
type ErrorRecord struct {
	Description string
	Time        time.Time
}

// Counters is a default Observer implementation backed by atomic counters and
// a bounded ring of recent errors. It has no dependency on a UI toolkit or
// metrics backend and is suitable for a standalone binary or for tests.
type Counters struct {
	accepted     atomic.Int64
	disconnected atomic.Int64
	rejected     atomic.Int64
	socks5Conns  atomic.Int64
	udpStarted   atomic.Int64
	udpEnded     atomic.Int64
	udpPackets   atomic.Int64

	mu     sync.Mutex
	ring   []ErrorRecord
	cap    int
	cursor int
}

// NewCounters returns a Counters that retains at most maxRecentErrors error
// records, discarding the oldest first once full.
func NewCounters(maxRecentErrors int) *Counters {
	if maxRecentErrors < 0 {
		maxRecentErrors = 0
	}
	return &Counters{cap: maxRecentErrors}
}

var _ Observer = (*Counters)(nil)

func (c *Counters) Accepted()               { c.accepted.Add(1) }
func (c *Counters) Disconnected()            { c.disconnected.Add(1) }
func (c *Counters) Rejected()                { c.rejected.Add(1) }
func (c *Counters) SOCKS5ConnectionStarted() { c.socks5Conns.Add(1) }
func (c *Counters) UDPSessionStarted()       { c.udpStarted.Add(1) }
func (c *Counters) UDPSessionEnded()         { c.udpEnded.Add(1) }
func (c *Counters) UDPPacketRelayed()        { c.udpPackets.Add(1) }

// Failed appends description to the recent-error ring, evicting the oldest
// entry once the ring is at capacity.
func (c *Counters) Failed(description string) {
	if c.cap == 0 {
		return
	}

	rec := ErrorRecord{Description: description, Time: time.Now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ring) < c.cap {
		c.ring = append(c.ring, rec)
		return
	}
	c.ring[c.cursor] = rec
	c.cursor = (c.cursor + 1) % c.cap
}

// Snapshot is a point-in-time copy of every counter, for display or testing.
type Snapshot struct {
	Accepted, Disconnected, Rejected       int64
	SOCKS5Connections                      int64
	UDPSessionsStarted, UDPSessionsEnded   int64
	UDPPacketsRelayed                      int64
	RecentErrors                           []ErrorRecord
}

// Snapshot returns the current values of every counter and a copy of the
// recent-error ring, oldest first.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	errs := make([]ErrorRecord, len(c.ring))
	if len(c.ring) < c.cap || c.cursor == 0 {
		copy(errs, c.ring)
	} else {
		n := copy(errs, c.ring[c.cursor:])
		copy(errs[n:], c.ring[:c.cursor])
	}
	c.mu.Unlock()

	return Snapshot{
		Accepted:           c.accepted.Load(),
		Disconnected:       c.disconnected.Load(),
		Rejected:           c.rejected.Load(),
		SOCKS5Connections:  c.socks5Conns.Load(),
		UDPSessionsStarted: c.udpStarted.Load(),
		UDPSessionsEnded:   c.udpEnded.Load(),
		UDPPacketsRelayed:  c.udpPackets.Load(),
		RecentErrors:       errs,
	}
}
