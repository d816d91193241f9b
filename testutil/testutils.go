package testutil

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/protocol"
	"github.com/stretchr/testify/require"
)

// =====================================
// Configuration
// =====================================

// RingConfigOption modifies a RingConfig.
type RingConfigOption func(*protocol.RingConfig)

// WithPassword sets the join password.
func WithPassword(password string) RingConfigOption {
	return func(c *protocol.RingConfig) {
		c.Password = password
	}
}

// WithMaxMembers bounds the ring size.
func WithMaxMembers(n int) RingConfigOption {
	return func(c *protocol.RingConfig) {
		c.MaxMembers = n
	}
}

// WithClosedRing rejects all joins.
func WithClosedRing() RingConfigOption {
	return func(c *protocol.RingConfig) {
		c.AcceptJoins = false
	}
}

// WithTokenInterval sets the coordinator's pacing.
func WithTokenInterval(d time.Duration) RingConfigOption {
	return func(c *protocol.RingConfig) {
		c.TokenInterval = d
	}
}

// WithMaxHoldTime sets the watchdog and retry timeout.
func WithMaxHoldTime(d time.Duration) RingConfigOption {
	return func(c *protocol.RingConfig) {
		c.MaxHoldTime = d
	}
}

// WithMarkPass makes idle holders append Empty frames.
func WithMarkPass() RingConfigOption {
	return func(c *protocol.RingConfig) {
		c.MarkPass = true
	}
}

// WithQueueSize bounds the station queues.
func WithQueueSize(n int) RingConfigOption {
	return func(c *protocol.RingConfig) {
		c.QueueSize = n
	}
}

// NewTestRingConfig returns a fast ring configuration.
func NewTestRingConfig(opts ...RingConfigOption) protocol.RingConfig {
	cfg := protocol.DefaultRingConfig()
	cfg.TokenInterval = 5 * time.Millisecond
	cfg.MaxHoldTime = time.Second
	cfg.QueueSize = 32
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// =====================================
// Keys and packets
// =====================================

// KeyPair derives a key pair from a seed filled with b.
func KeyPair(t testing.TB, b byte) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.NewKeyPairFromSeed(bytes.Repeat([]byte{b}, crypto.SeedSize))
	require.NoError(t, err)
	return kp
}

// SignedPacket builds a packet or fails the test.
func SignedPacket(t testing.TB, kp *crypto.KeyPair, source protocol.StationID, ts uint64, content protocol.Content) *protocol.Packet {
	t.Helper()
	p, err := protocol.NewPacket(kp, source, ts, content)
	require.NoError(t, err)
	return p
}

// Reencode passes p through the wire format, as a receiver would see it.
func Reencode(t testing.TB, p *protocol.Packet) *protocol.Packet {
	t.Helper()
	data, err := p.Encode()
	require.NoError(t, err)
	decoded, err := protocol.DecodePacket(data)
	require.NoError(t, err)
	return decoded
}

// =====================================
// Time
// =====================================

// FakeClock is a manually advanced time source.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a clock at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Millis returns the current fake time as a wire timestamp.
func (c *FakeClock) Millis() uint64 {
	return uint64(c.Now().UnixMilli())
}
