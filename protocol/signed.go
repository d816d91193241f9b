package protocol

import (
	"github.com/flashbots/tokenring/crypto"
)

// Signed binds a value to a signature and the signer's public key.
//
// The value is encoded once, at construction, and the signature is computed
// over those bytes followed by the public key, which prevents key
// substitution. The envelope is immutable and never references the private
// key: NewSigned only borrows the KeyPair for the signing call.
type Signed[T Encodable] struct {
	publicKey crypto.PublicKey
	signature crypto.Signature
	value     T
	encoded   []byte
}

// NewSigned encodes and signs obj.
func NewSigned[T Encodable](kp *crypto.KeyPair, obj T) (*Signed[T], error) {
	encoded, err := Encode(obj)
	if err != nil {
		return nil, err
	}

	pubkey := kp.PublicKey()
	signature, err := kp.Sign(signingPayload(encoded, pubkey))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		publicKey: pubkey,
		signature: signature,
		value:     obj,
		encoded:   encoded,
	}, nil
}

func signingPayload(encoded []byte, pubkey crypto.PublicKey) []byte {
	payload := make([]byte, 0, len(encoded)+crypto.PublicKeySize)
	payload = append(payload, encoded...)
	return append(payload, pubkey[:]...)
}

// Verify checks the signature over the stored encoding. It never panics.
func (s *Signed[T]) Verify() bool {
	if s == nil {
		return false
	}
	return crypto.Verify(s.publicKey, signingPayload(s.encoded, s.publicKey), s.signature)
}

// Recover verifies the signature and returns the value and signer's public key.
func (s *Signed[T]) Recover() (T, crypto.PublicKey, error) {
	var zero T
	if !s.Verify() {
		return zero, crypto.PublicKey{}, NewError(KindSignatureInvalid, "signature not valid")
	}
	return s.value, s.publicKey, nil
}

// UnsafeValue returns the value without signature verification.
func (s *Signed[T]) UnsafeValue() T {
	return s.value
}

// PublicKey returns the embedded signer key.
func (s *Signed[T]) PublicKey() crypto.PublicKey {
	return s.publicKey
}

// Signature returns the embedded signature.
func (s *Signed[T]) Signature() crypto.Signature {
	return s.signature
}

// EncodedValue returns a copy of the signed bytes.
func (s *Signed[T]) EncodedValue() []byte {
	return append([]byte(nil), s.encoded...)
}

// Encode writes [public key][signature][u16 length][encoded value].
func (s *Signed[T]) Encode(w *Writer) error {
	w.WriteFixed(s.publicKey[:])
	w.WriteFixed(s.signature[:])
	return w.WriteBytes(s.encoded)
}

// DecodeSigned reads an envelope and decodes its value with decode.
// The value bytes must be consumed exactly.
func DecodeSigned[T Encodable](r *Reader, decode func(*Reader) (T, error)) (*Signed[T], error) {
	s := &Signed[T]{}
	if err := r.ReadFixed(s.publicKey[:]); err != nil {
		return nil, err
	}
	if err := r.ReadFixed(s.signature[:]); err != nil {
		return nil, err
	}

	encoded, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	s.encoded = encoded

	vr := NewReader(encoded)
	s.value, err = decode(vr)
	if err != nil {
		return nil, err
	}
	if err := vr.Done(); err != nil {
		return nil, err
	}
	return s, nil
}
