package crypto

import (
	"crypto/hmac"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// DigestSize is the size of a content digest.
const DigestSize = 32

// Digest is a SHA3-256 hash of encoded packet content.
type Digest [DigestSize]byte

// ContentDigest hashes data with SHA3-256.
func ContentDigest(data []byte) Digest {
	return Digest(sha3.Sum256(data))
}

// String returns a hex-encoded representation of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// JoinProof binds a join request to the ring password without sending it.
// proof = HMAC-SHA3-256(password, stationID || timestamp).
func JoinProof(password, stationID string, timestamp uint64) Digest {
	mac := hmac.New(sha3.New256, []byte(password))
	mac.Write([]byte(stationID))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], timestamp)
	mac.Write(ts[:])

	var d Digest
	copy(d[:], mac.Sum(nil))
	return d
}

// VerifyJoinProof checks proof in constant time.
func VerifyJoinProof(password, stationID string, timestamp uint64, proof Digest) bool {
	expected := JoinProof(password, stationID, timestamp)
	return hmac.Equal(expected[:], proof[:])
}
