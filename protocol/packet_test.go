package protocol

import (
	"testing"

	"github.com/flashbots/tokenring/crypto"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, p *Packet) *Packet {
	t.Helper()
	wire, err := p.Encode()
	require.NoError(t, err)
	decoded, err := DecodePacket(wire)
	require.NoError(t, err)
	require.NoError(t, decoded.Verify())
	return decoded
}

func TestPacketRoundTrip(t *testing.T) {
	kp := testKeyPair(t, 1)
	peer := testKeyPair(t, 2)

	token := NewToken("coord", 10)
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: 11}, Body: Data{Payload: []byte("hi")}}))
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "beta", Timestamp: 12}, Body: Data{Destination: "alpha", Payload: []byte("dm")}}))
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: 13}, Body: AckData{Ref: FrameID{Sender: "beta", Timestamp: 12}}}))
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "gamma", Timestamp: 14}, Body: Empty{}}))
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "beta", Timestamp: 15}, Body: Data{Payload: []byte{}}}))

	contents := map[string]Content{
		"join": Join{Address: "127.0.0.1:9000", Proof: crypto.JoinProof("pw", "alpha", 7)},
		"join-reply-accepted": JoinReply{
			Result:      JoinAccepted,
			Position:    2,
			RingSize:    3,
			Predecessor: Neighbor{ID: "beta", PublicKey: peer.PublicKey(), Address: "b:1"},
			Successor:   Neighbor{ID: "coord", PublicKey: kp.PublicKey(), Address: "c:1"},
		},
		"join-reply-denied": JoinReply{Result: JoinDenied, Reason: "ring full"},
		"token":             TokenPass{Token: token},
		"empty-token":       TokenPass{Token: NewToken("coord", 5)},
		"leave":             Leave{},
	}

	for name, content := range contents {
		t.Run(name, func(t *testing.T) {
			p, err := NewPacket(kp, MustStationID("Alpha"), 7, content)
			require.NoError(t, err)
			require.NoError(t, p.Verify())

			decoded := roundTrip(t, p)
			require.Equal(t, p, decoded)
			require.Equal(t, content, decoded.Content)
			require.Equal(t, StationID("alpha"), decoded.Source())
			require.True(t, decoded.Header.PublicKey().Equal(kp.PublicKey()))
		})
	}
}

func TestPacketContentTamperingDetected(t *testing.T) {
	kp := testKeyPair(t, 1)
	p, err := NewPacket(kp, "alpha", 7, Join{Address: "a:1"})
	require.NoError(t, err)
	wire, err := p.Encode()
	require.NoError(t, err)

	// The last byte belongs to the join proof.
	wire[len(wire)-1] ^= 0x01
	decoded, err := DecodePacket(wire)
	require.NoError(t, err)
	err = decoded.Verify()
	require.True(t, IsKind(err, KindSignatureInvalid), err)
}

func TestPacketHeaderTamperingDetected(t *testing.T) {
	kp := testKeyPair(t, 1)
	p, err := NewPacket(kp, "alpha", 7, Leave{})
	require.NoError(t, err)
	wire, err := p.Encode()
	require.NoError(t, err)

	// Flip a bit inside the signature.
	wire[crypto.PublicKeySize+3] ^= 0x80
	decoded, err := DecodePacket(wire)
	require.NoError(t, err)
	require.True(t, IsKind(decoded.Verify(), KindSignatureInvalid))
}

func TestPacketSwappedContentDetected(t *testing.T) {
	kp := testKeyPair(t, 1)
	join, err := NewPacket(kp, "alpha", 7, Join{Address: "a:1"})
	require.NoError(t, err)
	leave, err := NewPacket(kp, "alpha", 8, Leave{})
	require.NoError(t, err)

	forged := &Packet{Header: join.Header, Content: leave.Content, contentBytes: leave.contentBytes}
	wire, err := forged.Encode()
	require.NoError(t, err)
	decoded, err := DecodePacket(wire)
	require.NoError(t, err)
	require.True(t, IsKind(decoded.Verify(), KindSignatureInvalid))
}

func TestDecodePacketMalformed(t *testing.T) {
	kp := testKeyPair(t, 1)
	p, err := NewPacket(kp, "alpha", 7, TokenPass{Token: NewToken("alpha", 1)})
	require.NoError(t, err)
	wire, err := p.Encode()
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":     nil,
		"truncated": wire[:len(wire)-1],
		"trailing":  append(append([]byte{}, wire...), 0),
		"bad tag":   append(append([]byte{}, wire[:len(wire)-len(p.contentBytes)]...), 0xff),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePacket(data)
			require.True(t, IsKind(err, KindMalformedPacket), err)
		})
	}
}

func TestDecodeTokenHugeFrameCount(t *testing.T) {
	w := NewWriter()
	require.NoError(t, MustStationID("a").Encode(w))
	w.WriteUint64(1)
	w.WriteUint32(1 << 30)
	_, err := DecodeToken(NewReader(w.Bytes()))
	require.True(t, IsKind(err, KindMalformedPacket), err)
}

func FuzzDecodePacket(f *testing.F) {
	kp := testKeyPair(f, 1)
	for _, c := range []Content{Join{Address: "x"}, Leave{}, TokenPass{Token: NewToken("a", 1)}, JoinReply{Result: JoinDenied, Reason: "no"}} {
		p, err := NewPacket(kp, "a", 1, c)
		require.NoError(f, err)
		wire, err := p.Encode()
		require.NoError(f, err)
		f.Add(wire)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := DecodePacket(data)
		if err != nil {
			require.True(t, IsKind(err, KindMalformedPacket), err)
			return
		}
		// Verification fails closed and never panics.
		_ = p.Verify()

		wire, err := p.Encode()
		require.NoError(t, err)
		require.Equal(t, data, wire)
	})
}

func TestEmptyPayloadSurvivesDecode(t *testing.T) {
	token := NewToken("coord", 10)
	require.NoError(t, token.Append(Frame{ID: FrameID{Sender: "alpha", Timestamp: 11}, Body: Data{Payload: []byte{}}}))
	p, err := NewPacket(testKeyPair(t, 1), "alpha", 12, TokenPass{Token: token})
	require.NoError(t, err)

	decoded := roundTrip(t, p)
	body := decoded.Content.(TokenPass).Token.Frames[0].Body.(Data)
	require.NotNil(t, body.Payload)
	require.Equal(t, Data{Payload: []byte{}}, body)
}
