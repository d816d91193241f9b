package crypto

import (
	"crypto/ed25519"
	"errors"
	"sync"
)

var ErrKeyPairDestroyed = errors.New("key pair destroyed")

// KeyPair holds a station's signing identity.
//
// Only the 32-byte seed is retained. The expanded Ed25519 private key exists
// solely inside Sign and is wiped before Sign returns, on every exit path.
// Callers never receive the private key.
type KeyPair struct {
	public PublicKey

	mu   sync.Mutex
	seed []byte
}

// NewKeyPairFromSeed derives a key pair from a 32-byte seed.
// The seed is copied; callers may wipe their copy afterwards.
func NewKeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != SeedSize {
		return nil, ErrInvalidKeySize
	}

	priv := ed25519.NewKeyFromSeed(seed)
	defer clear(priv)

	kp := &KeyPair{seed: append([]byte(nil), seed...)}
	copy(kp.public[:], priv[SeedSize:])
	return kp, nil
}

// PublicKey returns the public half of the key pair.
func (kp *KeyPair) PublicKey() PublicKey {
	return kp.public
}

// Sign signs data. The expanded private key is scoped to this call.
func (kp *KeyPair) Sign(data []byte) (Signature, error) {
	var sig Signature
	err := kp.withPrivateKey(func(priv ed25519.PrivateKey) {
		copy(sig[:], ed25519.Sign(priv, data))
	})
	return sig, err
}

// Destroy wipes the seed. Subsequent Sign calls fail.
func (kp *KeyPair) Destroy() {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	clear(kp.seed)
	kp.seed = nil
}

func (kp *KeyPair) withPrivateKey(fn func(ed25519.PrivateKey)) error {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	if kp.seed == nil {
		return ErrKeyPairDestroyed
	}

	priv := ed25519.NewKeyFromSeed(kp.seed)
	defer clear(priv)
	fn(priv)
	return nil
}
