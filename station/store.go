package station

import (
	"context"

	"github.com/flashbots/tokenring/protocol"
)

// MembershipStore records the coordinator's membership changes.
// Implementations must be safe for concurrent use.
type MembershipStore interface {
	SaveMember(ctx context.Context, m Member) error
	DeleteMember(ctx context.Context, id protocol.StationID) error
}
