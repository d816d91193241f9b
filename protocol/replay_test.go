package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReplayGuard(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	g := NewReplayGuard(time.Second, func() time.Time { return now })
	kp := testKeyPair(t, 1)

	fresh, err := NewPacket(kp, "alpha", uint64(now.UnixMilli()), Leave{})
	require.NoError(t, err)
	require.NoError(t, g.Check(fresh))
	require.Equal(t, 1, g.Len())

	err = g.Check(fresh)
	require.True(t, IsKind(err, KindStaleOrReplayed), err)

	old, err := NewPacket(kp, "alpha", uint64(now.Add(-2*time.Second).UnixMilli()), Leave{})
	require.NoError(t, err)
	require.True(t, IsKind(g.Check(old), KindStaleOrReplayed))

	future, err := NewPacket(kp, "alpha", uint64(now.Add(2*time.Second).UnixMilli()), Leave{})
	require.NoError(t, err)
	require.True(t, IsKind(g.Check(future), KindStaleOrReplayed))

	edge, err := NewPacket(kp, "alpha", uint64(now.Add(-time.Second).UnixMilli()), Leave{})
	require.NoError(t, err)
	require.NoError(t, g.Check(edge))

	g.Prune()
	require.Equal(t, 2, g.Len())
}
