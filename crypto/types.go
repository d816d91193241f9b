package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// PublicKeySize is the size of an encoded public key.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the size of an encoded signature.
	SignatureSize = ed25519.SignatureSize
	// SeedSize is the size of a private key seed.
	SeedSize = ed25519.SeedSize
)

var ErrInvalidKeySize = errors.New("invalid key size")

// PublicKey identifies a signer.
// In the ring, public keys authenticate every control packet and pin the
// coordinator identity for passive stations.
type PublicKey [PublicKeySize]byte

// NewPublicKeyFromBytes creates a PublicKey from a byte slice.
func NewPublicKeyFromBytes(data []byte) (PublicKey, error) {
	var pk PublicKey
	if len(data) != PublicKeySize {
		return pk, fmt.Errorf("%w: public key has %d bytes", ErrInvalidKeySize, len(data))
	}
	copy(pk[:], data)
	return pk, nil
}

// NewPublicKeyFromString creates a PublicKey from a hex-encoded string.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return PublicKey{}, err
	}
	return NewPublicKeyFromBytes(rawBytes)
}

// Bytes returns a copy of the public key bytes.
func (pk PublicKey) Bytes() []byte {
	return append([]byte(nil), pk[:]...)
}

// Equal compares two public keys in constant time.
func (pk PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(pk[:], other[:]) == 1
}

// IsZero reports whether the key is unset.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// String returns a hex-encoded representation of the public key.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// Short returns the first 8 hex characters, for logs.
func (pk PublicKey) Short() string {
	return hex.EncodeToString(pk[:4])
}

// MarshalText encodes the key as hex.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText decodes a hex key.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := NewPublicKeyFromString(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// Signature is an Ed25519 signature over a byte buffer.
type Signature [SignatureSize]byte

// NewSignature creates a Signature from a byte slice.
func NewSignature(data []byte) (Signature, error) {
	var sig Signature
	if len(data) != SignatureSize {
		return sig, fmt.Errorf("%w: signature has %d bytes", ErrInvalidKeySize, len(data))
	}
	copy(sig[:], data)
	return sig, nil
}

// Bytes returns a copy of the signature bytes.
func (s Signature) Bytes() []byte {
	return append([]byte(nil), s[:]...)
}

// Verify checks if this signature is valid for the given data and public key.
func (s Signature) Verify(publicKey PublicKey, data []byte) bool {
	return Verify(publicKey, data, s)
}

// String returns a hex-encoded representation of the signature.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Verify reports whether sig is a valid signature of data by publicKey.
func Verify(publicKey PublicKey, data []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(publicKey[:]), data, sig[:])
}

// GenerateKeyPair generates a new Ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	defer clear(seed)
	return NewKeyPairFromSeed(seed)
}
