package transport

import (
	"context"
	"errors"

	"github.com/flashbots/tokenring/protocol"
)

// MaxPacketSize bounds a single encoded packet.
const MaxPacketSize = 1 << 20

// ErrClosed is returned by Receive and Send once a link is closed.
var ErrClosed = errors.New("link closed")

// Link is a station's attachment to the ring transport.
type Link interface {
	// Addr is the address other stations use to reach this link.
	Addr() string

	// Send delivers data to the link at addr, blocking on backpressure.
	// Failures are protocol.KindTransportFailure errors.
	Send(ctx context.Context, addr string, data []byte) error

	// Receive returns the next inbound packet.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the link. Pending and future calls fail with ErrClosed.
	Close() error
}

func transportError(msg string, cause error) error {
	return protocol.WrapError(protocol.KindTransportFailure, msg, cause)
}
