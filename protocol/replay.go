package protocol

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// ReplayGuard rejects packets whose timestamp is outside the freshness window
// and packets whose header signature has already been seen within it.
//
// Check must only be called on packets that passed Verify, otherwise a forged
// packet could poison the cache for a genuine one.
type ReplayGuard struct {
	window time.Duration
	now    func() time.Time
	seen   *cache.Cache
}

// NewReplayGuard creates a guard. A nil now uses time.Now.
func NewReplayGuard(window time.Duration, now func() time.Time) *ReplayGuard {
	if now == nil {
		now = time.Now
	}
	// Entries outlive the window on both sides of skew. No janitor goroutine
	// is started; the owner calls Prune.
	return &ReplayGuard{
		window: window,
		now:    now,
		seen:   cache.New(2*window, 0),
	}
}

// Check records p and returns a StaleOrReplayed error if it is stale or a duplicate.
func (g *ReplayGuard) Check(p *Packet) error {
	ts := TimeOf(p.Header.UnsafeValue().Timestamp)
	skew := g.now().Sub(ts)
	if skew > g.window || skew < -g.window {
		return NewError(KindStaleOrReplayed, fmt.Sprintf("timestamp %s outside freshness window %s", ts.Format(time.RFC3339Nano), g.window))
	}

	sig := p.Header.Signature()
	if err := g.seen.Add(string(sig[:]), struct{}{}, cache.DefaultExpiration); err != nil {
		return NewError(KindStaleOrReplayed, "duplicate packet "+sig.String()[:16])
	}
	return nil
}

// Prune drops expired entries.
func (g *ReplayGuard) Prune() {
	g.seen.DeleteExpired()
}

// Len returns the number of remembered packets.
func (g *ReplayGuard) Len() int {
	return g.seen.ItemCount()
}
