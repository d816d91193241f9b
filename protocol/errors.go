package protocol

import "errors"

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// KindSignatureInvalid: verification failed (tampered content, wrong key, corrupted signature).
	KindSignatureInvalid Kind = "SignatureInvalid"
	// KindMalformedPacket: the byte buffer could not be decoded.
	KindMalformedPacket Kind = "MalformedPacket"
	// KindStaleOrReplayed: timestamp outside the freshness window, duplicate packet or stale frame.
	KindStaleOrReplayed Kind = "StaleOrReplayed"
	// KindProtocolViolation: content not valid for the receiving station's state.
	KindProtocolViolation Kind = "ProtocolViolation"
	// KindTransportFailure: a neighbor link is unreachable.
	KindTransportFailure Kind = "TransportFailure"
	// KindJoinDenied: the coordinator refused admission.
	KindJoinDenied Kind = "JoinDenied"
)

// Error is the structured error type used across the ring.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError creates a structured error of the given kind.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError creates a structured error of the given kind around cause.
func WrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

func errMalformed(msg string) error {
	return NewError(KindMalformedPacket, msg)
}
