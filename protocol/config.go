package protocol

import (
	"errors"
	"fmt"
	"time"
)

// RingConfig provides configuration parameters for ring stations.
// Only the coordinator uses the admission fields.
type RingConfig struct {
	// Password gates admission. Joiners prove knowledge of it with an HMAC;
	// an empty password admits anyone.
	Password string `json:"password" yaml:"password"`

	// AcceptJoins closes the ring to new members when false.
	AcceptJoins bool `json:"accept_joins" yaml:"accept_joins"`

	// MaxMembers bounds ring size, excluding the coordinator. Zero means unbounded.
	MaxMembers int `json:"max_members" yaml:"max_members"`

	// FreshnessWindow is the accepted clock skew for inbound packets.
	FreshnessWindow time.Duration `json:"freshness_window" yaml:"freshness_window"`

	// MaxHoldTime is how long the coordinator waits for the token to come back
	// before reporting an overrun.
	MaxHoldTime time.Duration `json:"max_hold_time" yaml:"max_hold_time"`

	// TokenInterval paces token issue when the coordinator is alone in the ring.
	TokenInterval time.Duration `json:"token_interval" yaml:"token_interval"`

	// RefreshEvery prunes frames that completed a full rotation every N rotations.
	RefreshEvery uint32 `json:"refresh_every" yaml:"refresh_every"`

	// QueueSize bounds inbound, outbound and delivery channels.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// MarkPass appends an Empty frame on holds with nothing to send.
	MarkPass bool `json:"mark_pass" yaml:"mark_pass"`
}

// DefaultRingConfig returns the configuration used when none is given.
func DefaultRingConfig() RingConfig {
	return RingConfig{
		AcceptJoins:     true,
		MaxMembers:      64,
		FreshnessWindow: 30 * time.Second,
		MaxHoldTime:     5 * time.Second,
		TokenInterval:   100 * time.Millisecond,
		RefreshEvery:    1,
		QueueSize:       64,
	}
}

// Validate rejects configurations a station cannot run with.
func (c RingConfig) Validate() error {
	var errs []error
	if c.MaxMembers < 0 {
		errs = append(errs, fmt.Errorf("max_members must not be negative, got %d", c.MaxMembers))
	}
	if c.FreshnessWindow <= 0 {
		errs = append(errs, fmt.Errorf("freshness_window must be positive, got %s", c.FreshnessWindow))
	}
	if c.MaxHoldTime <= 0 {
		errs = append(errs, fmt.Errorf("max_hold_time must be positive, got %s", c.MaxHoldTime))
	}
	if c.TokenInterval <= 0 {
		errs = append(errs, fmt.Errorf("token_interval must be positive, got %s", c.TokenInterval))
	}
	if c.RefreshEvery == 0 {
		errs = append(errs, errors.New("refresh_every must be at least 1"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	return errors.Join(errs...)
}
