package stream

import (
	"sort"
	"sync"
	"time"
)

// clockWindow is how many recent exchange measurements feed the estimate.
// Snapcast exchanges once a second, so this covers roughly half a minute.
const clockWindow = 32

// ClockSync estimates the server-to-client clock offset from repeated
// time-exchange round trips. The estimate is the median over a sliding
// window, which rejects the occasional RTT spike without needing a filter
// with tunable state.
type ClockSync struct {
	mu      sync.Mutex
	offsets []time.Duration
	next    int
	filled  bool
}

// NewClockSync creates an empty estimator
func NewClockSync() *ClockSync {
	return &ClockSync{
		offsets: make([]time.Duration, clockWindow),
	}
}

// AddMeasurement records one exchange. c2s is the server-measured
// client-to-server delta (server receive time minus client send time),
// rtt the full round trip as observed by the client.
func (c *ClockSync) AddMeasurement(c2s, rtt time.Duration) {
	if rtt < 0 {
		return
	}
	offset := c2s - rtt/2

	c.mu.Lock()
	c.offsets[c.next] = offset
	c.next++
	if c.next == len(c.offsets) {
		c.next = 0
		c.filled = true
	}
	c.mu.Unlock()
}

// Offset returns the current median offset estimate. Zero until the
// first measurement arrives.
func (c *ClockSync) Offset() time.Duration {
	c.mu.Lock()
	n := c.next
	if c.filled {
		n = len(c.offsets)
	}
	if n == 0 {
		c.mu.Unlock()
		return 0
	}
	window := make([]time.Duration, n)
	copy(window, c.offsets[:n])
	c.mu.Unlock()

	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	return window[n/2]
}

// Synchronized reports whether enough measurements have been collected
// for the offset estimate to be meaningful.
func (c *ClockSync) Synchronized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filled || c.next >= 3
}

// ServerToLocal converts a server-side timestamp to the local clock
func (c *ClockSync) ServerToLocal(serverTime time.Duration) time.Time {
	// server timestamps are wall-clock timevals; offset maps between clocks
	return time.Unix(0, 0).Add(serverTime - c.Offset())
}
