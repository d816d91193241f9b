// Package crypto provides the signing primitives used to authenticate ring traffic.
//
// This package implements the low-level operations every station relies on:
//
//   - Ed25519 key generation, signing and verification
//   - Scoped private key use: a KeyPair keeps only its seed and expands the
//     signing key for the duration of a single Sign call, wiping it afterwards
//   - SHA3-256 content digests that bind packet content to a signed header
//   - HMAC-SHA3 join proofs derived from the ring password
//
// Higher level envelopes (protocol.Signed) are built on top of these
// primitives and never hold private key material.
//
// # Key Management
//
// Public keys and signatures are fixed-size values (32 and 64 bytes) and can
// be compared and used as map keys directly. Verification fails closed: any
// malformed input yields false, never a panic.
package crypto
