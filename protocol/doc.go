// Package protocol defines the authenticated wire model of the token ring.
//
// # Envelope
//
// Signed[T] binds an encoded value to an Ed25519 signature and the signer's
// public key. The signature covers the canonical encoding followed by the
// public key. Envelopes are built at the moment of transmission and never hold
// private key material.
//
// # Packets
//
// Every Packet is a signed PacketHeader {source, timestamp, content digest}
// followed by one content variant:
//
//   - Join: a prospective member asks the coordinator for admission.
//   - JoinReply: the coordinator admits (with position and neighbors) or denies.
//   - TokenPass: the holder forwards the token to its successor.
//   - Leave: a member departs.
//
// The content itself is not signed; its SHA3-256 digest is part of the signed
// header, so a receiver that calls Packet.Verify has authenticated both.
//
// Wire layout:
//
//	[public key 32][signature 64][u16 len][header][content tag][content]
//
// # Token
//
// The Token carries an unsigned TokenHeader and an ordered list of frames. It
// always travels inside an authenticated TokenPass packet. Frame ids are
// (sender, timestamp) pairs, strictly increasing per sender, which lets any
// holder reject stale or duplicated frames.
//
// # Errors
//
// Decoding and verification failures are *Error values with a stable Kind.
// Receivers drop the packet and continue; only KindTransportFailure is fatal to
// a station.
package protocol
