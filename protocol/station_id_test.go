package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStationID(t *testing.T) {
	id, err := NewStationID("  Alice ")
	require.NoError(t, err)
	require.Equal(t, StationID("alice"), id)
	require.Equal(t, "/alice/", id.String())

	for _, bad := range []string{"", "   ", "a/b", "with space", "café", strings.Repeat("x", MaxStationIDLength+1)} {
		_, err := NewStationID(bad)
		require.Error(t, err, "%q", bad)
	}

	_, err = NewStationID(strings.Repeat("x", MaxStationIDLength))
	require.NoError(t, err)
}

func TestDecodeStationIDRequiresCanonicalForm(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteString("Alice"))
	_, err := DecodeStationID(NewReader(w.Bytes()))
	require.True(t, IsKind(err, KindMalformedPacket), err)
}

func TestErrorKinds(t *testing.T) {
	cause := NewError(KindMalformedPacket, "short")
	err := WrapError(KindTransportFailure, "send", cause)
	require.True(t, IsKind(err, KindTransportFailure))
	require.Equal(t, "TransportFailure: send: MalformedPacket: short", err.Error())
	require.ErrorIs(t, err, cause)
	require.Equal(t, Kind(""), KindOf(nil))
}
