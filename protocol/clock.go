package protocol

import (
	"sync"
	"time"
)

// Clock produces strictly increasing millisecond timestamps for one station.
// Two calls never return the same value, even within the same millisecond.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last uint64
}

// NewClock creates a clock. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns the next timestamp in Unix milliseconds.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := uint64(c.now().UnixMilli())
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// TimeOf converts a wire timestamp to time.Time.
func TimeOf(ts uint64) time.Time {
	return time.UnixMilli(int64(ts))
}
