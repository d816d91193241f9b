package protocol

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Simulates N single-hop forwards around a three member ring, each holder
// appending exactly one frame and re-encoding the token inside a fresh packet.
func TestTokenForwardsPreserveOrder(t *testing.T) {
	members := []StationID{"coord", "alpha", "beta"}
	keys := map[StationID]int{"coord": 1, "alpha": 2, "beta": 3}
	clocks := map[StationID]*Clock{}
	for _, m := range members {
		clocks[m] = NewClock(func() time.Time { return time.UnixMilli(1000) })
	}

	token := NewToken("coord", 0)
	const forwards = 20
	for i := 0; i < forwards; i++ {
		holder := members[i%len(members)]
		frame := Frame{
			ID:   FrameID{Sender: holder, Timestamp: clocks[holder].Now()},
			Body: Data{Payload: []byte(fmt.Sprintf("frame %d", i))},
		}
		require.NoError(t, token.Append(frame))

		p, err := NewPacket(testKeyPair(t, byte(keys[holder])), holder, clocks[holder].Now(), TokenPass{Token: token})
		require.NoError(t, err)
		decoded := roundTrip(t, p)
		token = decoded.Content.(TokenPass).Token
	}

	require.Len(t, token.Frames, forwards)
	require.NoError(t, token.Validate())
	for i, f := range token.Frames {
		require.Equal(t, members[i%len(members)], f.ID.Sender)
		require.Equal(t, []byte(fmt.Sprintf("frame %d", i)), f.Body.(Data).Payload)
	}
}

func TestTokenAppendRejectsStaleFrames(t *testing.T) {
	token := NewToken("coord", 1)
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: 5}, Body: Empty{}}))

	err := token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: 5}, Body: Empty{}})
	require.True(t, IsKind(err, KindStaleOrReplayed), err)
	err = token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: 4}, Body: Empty{}})
	require.True(t, IsKind(err, KindStaleOrReplayed), err)

	// Other senders are independent.
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "beta", Timestamp: 1}, Body: Empty{}}))
	require.Len(t, token.Frames, 2)

	last, ok := token.LastFrom("alpha")
	require.True(t, ok)
	require.Equal(t, uint64(5), last.Timestamp)
	_, ok = token.LastFrom("gamma")
	require.False(t, ok)
}

func TestTokenValidateDetectsReordering(t *testing.T) {
	token := &Token{Header: TokenHeader{Sender: "coord", Timestamp: 1}, Frames: []Frame{
		{ID: FrameID{Sender: "alpha", Timestamp: 9}, Body: Empty{}},
		{ID: FrameID{Sender: "beta", Timestamp: 1}, Body: Empty{}},
		{ID: FrameID{Sender: "alpha", Timestamp: 3}, Body: Empty{}},
	}}
	require.True(t, IsKind(token.Validate(), KindStaleOrReplayed))
}

func TestTokenCloneIsDeep(t *testing.T) {
	token := NewToken("coord", 1)
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: 2}, Body: Data{Payload: []byte("abc")}}))

	c := token.Clone()
	c.Frames[0].Body.(Data).Payload[0] = 'x'
	c.Frames = append(c.Frames, Frame{ID: FrameID{Sender: "beta", Timestamp: 3}, Body: Empty{}})

	require.Equal(t, []byte("abc"), token.Frames[0].Body.(Data).Payload)
	require.Len(t, token.Frames, 1)
}

func TestTokenPrune(t *testing.T) {
	token := NewToken("coord", 1)
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: i}, Body: Empty{}}))
	}

	token.Prune(0)
	require.Len(t, token.Frames, 4)
	token.Prune(3)
	require.Len(t, token.Frames, 1)
	require.Equal(t, uint64(4), token.Frames[0].ID.Timestamp)
	token.Prune(10)
	require.Empty(t, token.Frames)
}

func TestDataAddressing(t *testing.T) {
	broadcast := Data{Payload: []byte("x")}
	require.True(t, broadcast.IsBroadcast())
	require.True(t, broadcast.AddressedTo("anyone"))

	unicast := Data{Destination: "alpha", Payload: []byte("x")}
	require.False(t, unicast.IsBroadcast())
	require.True(t, unicast.AddressedTo("alpha"))
	require.False(t, unicast.AddressedTo("beta"))
}

func TestClockStrictlyIncreasing(t *testing.T) {
	now := time.UnixMilli(5000)
	c := NewClock(func() time.Time { return now })

	a, b := c.Now(), c.Now()
	require.Equal(t, uint64(5000), a)
	require.Equal(t, uint64(5001), b)

	// A clock stepping backwards does not break monotonicity.
	now = time.UnixMilli(10)
	require.Equal(t, uint64(5002), c.Now())
	require.Equal(t, time.UnixMilli(5002), TimeOf(5002))
}
