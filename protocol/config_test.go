package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultRingConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultRingConfig().Validate())
}

func TestRingConfigValidate(t *testing.T) {
	cases := map[string]func(*RingConfig){
		"negative max members": func(c *RingConfig) { c.MaxMembers = -1 },
		"zero freshness":       func(c *RingConfig) { c.FreshnessWindow = 0 },
		"zero hold time":       func(c *RingConfig) { c.MaxHoldTime = 0 },
		"zero interval":        func(c *RingConfig) { c.TokenInterval = -time.Second },
		"zero refresh":         func(c *RingConfig) { c.RefreshEvery = 0 },
		"zero queue":           func(c *RingConfig) { c.QueueSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultRingConfig()
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
