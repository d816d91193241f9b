package common

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/flashbots/tokenring/crypto"
)

// LoadOrGenerateKeyPair returns the station key pair. An inline seed wins
// over the seed file; a missing seed file is created with a fresh seed; with
// neither, an ephemeral key pair is generated.
func LoadOrGenerateKeyPair(keys KeysConfig) (*crypto.KeyPair, error) {
	if keys.Seed != "" {
		return keyPairFromHex(keys.Seed)
	}
	if keys.SeedFile == "" {
		return crypto.GenerateKeyPair()
	}

	data, err := os.ReadFile(keys.SeedFile)
	if err == nil {
		return keyPairFromHex(strings.TrimSpace(string(data)))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	seed := make([]byte, crypto.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	defer clear(seed)

	if err := os.WriteFile(keys.SeedFile, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing seed file: %w", err)
	}
	return crypto.NewKeyPairFromSeed(seed)
}

func keyPairFromHex(s string) (*crypto.KeyPair, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex seed: %w", err)
	}
	defer clear(seed)
	return crypto.NewKeyPairFromSeed(seed)
}
