package protocol

import (
	"bytes"
	"crypto/ed25519"
	"reflect"
	"testing"

	"github.com/flashbots/tokenring/crypto"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t testing.TB, b byte) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.NewKeyPairFromSeed(bytes.Repeat([]byte{b}, crypto.SeedSize))
	require.NoError(t, err)
	return kp
}

func testHeader() PacketHeader {
	return PacketHeader{
		Source:        MustStationID("alpha"),
		Timestamp:     1_700_000_000_000,
		ContentDigest: crypto.ContentDigest([]byte("content")),
	}
}

func TestSignedVerifies(t *testing.T) {
	kp := testKeyPair(t, 1)
	s, err := NewSigned(kp, testHeader())
	require.NoError(t, err)

	require.True(t, s.Verify())
	v, pk, err := s.Recover()
	require.NoError(t, err)
	require.Equal(t, testHeader(), v)
	require.True(t, pk.Equal(kp.PublicKey()))
}

func TestSignedNilDoesNotVerify(t *testing.T) {
	var s *Signed[PacketHeader]
	require.False(t, s.Verify())
	_, _, err := s.Recover()
	require.True(t, IsKind(err, KindSignatureInvalid))
}

// Every single-bit flip of the value bytes, the signature or the public key
// must invalidate the envelope.
func TestSignedBitFlips(t *testing.T) {
	kp := testKeyPair(t, 2)
	s, err := NewSigned(kp, testHeader())
	require.NoError(t, err)

	flip := func(b []byte, bit int) []byte {
		c := bytes.Clone(b)
		c[bit/8] ^= 1 << (bit % 8)
		return c
	}

	for bit := 0; bit < len(s.encoded)*8; bit++ {
		mutated := *s
		mutated.encoded = flip(s.encoded, bit)
		require.False(t, mutated.Verify(), "value bit %d", bit)
	}
	for bit := 0; bit < crypto.SignatureSize*8; bit++ {
		mutated := *s
		copy(mutated.signature[:], flip(s.signature[:], bit))
		require.False(t, mutated.Verify(), "signature bit %d", bit)
	}
	for bit := 0; bit < crypto.PublicKeySize*8; bit++ {
		mutated := *s
		copy(mutated.publicKey[:], flip(s.publicKey[:], bit))
		require.False(t, mutated.Verify(), "public key bit %d", bit)
	}
}

func TestSignedWireBitFlipsNeverVerify(t *testing.T) {
	kp := testKeyPair(t, 3)
	s, err := NewSigned(kp, testHeader())
	require.NoError(t, err)
	wire, err := Encode(s)
	require.NoError(t, err)

	for bit := 0; bit < len(wire)*8; bit++ {
		mutated := bytes.Clone(wire)
		mutated[bit/8] ^= 1 << (bit % 8)
		decoded, err := DecodeSigned(NewReader(mutated), DecodePacketHeader)
		if err != nil {
			require.True(t, IsKind(err, KindMalformedPacket), "bit %d: %v", bit, err)
			continue
		}
		require.False(t, decoded.Verify(), "bit %d", bit)
	}
}

// collectBytes gathers every byte reachable from v, including unexported fields.
func collectBytes(v reflect.Value, out *bytes.Buffer, seen map[uintptr]bool) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return
		}
		seen[v.Pointer()] = true
		collectBytes(v.Elem(), out, seen)
	case reflect.Interface:
		if !v.IsNil() {
			collectBytes(v.Elem(), out, seen)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			collectBytes(v.Field(i), out, seen)
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			for i := 0; i < v.Len(); i++ {
				out.WriteByte(byte(v.Index(i).Uint()))
			}
			return
		}
		for i := 0; i < v.Len(); i++ {
			collectBytes(v.Index(i), out, seen)
		}
	case reflect.String:
		out.WriteString(v.String())
	}
}

func TestPrivateKeyNotReachableFromEnvelope(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5a}, crypto.SeedSize)
	kp, err := crypto.NewKeyPairFromSeed(seed)
	require.NoError(t, err)
	priv := ed25519.NewKeyFromSeed(seed)

	packet, err := NewPacket(kp, MustStationID("alpha"), 42, TokenPass{Token: NewToken("alpha", 41)})
	require.NoError(t, err)

	var reachable bytes.Buffer
	collectBytes(reflect.ValueOf(packet), &reachable, map[uintptr]bool{})
	require.NotZero(t, reachable.Len())
	require.False(t, bytes.Contains(reachable.Bytes(), seed), "seed reachable from packet")
	require.False(t, bytes.Contains(reachable.Bytes(), priv), "private key reachable from packet")

	// The envelope type itself has no field that could hold a key pair.
	typ := reflect.TypeOf(Signed[PacketHeader]{})
	kpType := reflect.TypeOf(kp)
	for i := 0; i < typ.NumField(); i++ {
		require.NotEqual(t, kpType, typ.Field(i).Type)
		require.NotEqual(t, kpType.Elem(), typ.Field(i).Type)
	}
}

func TestDestroyedKeyPairCannotSign(t *testing.T) {
	kp := testKeyPair(t, 4)
	kp.Destroy()
	_, err := NewSigned(kp, testHeader())
	require.ErrorIs(t, err, crypto.ErrKeyPairDestroyed)
}

func TestDecodeSignedRejectsTrailingValueBytes(t *testing.T) {
	kp := testKeyPair(t, 5)
	s, err := NewSigned(kp, testHeader())
	require.NoError(t, err)

	w := NewWriter()
	w.WriteFixed(s.publicKey[:])
	w.WriteFixed(s.signature[:])
	require.NoError(t, w.WriteBytes(append(s.EncodedValue(), 0)))

	_, err = DecodeSigned(NewReader(w.Bytes()), DecodePacketHeader)
	require.True(t, IsKind(err, KindMalformedPacket), err)
}

func FuzzSignedVerify(f *testing.F) {
	f.Add("alpha", uint64(1), []byte("x"))
	f.Add("Z", uint64(0), []byte{})
	f.Fuzz(func(t *testing.T, name string, ts uint64, content []byte) {
		id, err := NewStationID(name)
		if err != nil {
			t.Skip()
		}
		kp := testKeyPair(t, 9)
		h := PacketHeader{Source: id, Timestamp: ts, ContentDigest: crypto.ContentDigest(content)}
		s, err := NewSigned(kp, h)
		require.NoError(t, err)
		require.True(t, s.Verify())

		wire, err := Encode(s)
		require.NoError(t, err)
		decoded, err := DecodeSigned(NewReader(wire), DecodePacketHeader)
		require.NoError(t, err)
		require.True(t, decoded.Verify())
		require.Equal(t, h, decoded.UnsafeValue())
	})
}
