package station

import (
	"time"

	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/protocol"
)

// Role names the station's part in the ring.
type Role string

const (
	RoleActive  Role = "active"
	RolePassive Role = "passive"
)

// State is a station's protocol state. Active stations move Forming →
// Operating; passive stations move Unjoined → AwaitingReply → Idle and
// briefly HoldingToken, ending in Left.
type State string

const (
	StateForming       State = "forming"
	StateOperating     State = "operating"
	StateUnjoined      State = "unjoined"
	StateAwaitingReply State = "awaiting-reply"
	StateIdle          State = "idle"
	StateHoldingToken  State = "holding-token"
	StateLeft          State = "left"
)

// role is either *activeRole or *passiveRole. Only the active role owns a
// Membership, so topology can only be changed by coordinator code paths.
type role interface {
	name() Role
	state() State
}

type activeRole struct {
	st      State
	members *Membership
	store   MembershipStore

	// token is non-nil while the coordinator holds it.
	token *protocol.Token
	// issued is the header of the token instance currently in the ring, and
	// issuedCopy the token as it was sent, for re-issue after a failed send.
	issued       protocol.TokenHeader
	issuedCopy   *protocol.Token
	issuedFrames int
	issuedAt     time.Time
	inFlight     bool
	overrun      bool
	rotations    uint64

	// departed holds members removed within the last MaxHoldTime. A departing
	// member may still pass on a token issued before its removal.
	departed map[protocol.StationID]departure
}

type departure struct {
	key crypto.PublicKey
	at  time.Time
}

func (a *activeRole) name() Role   { return RoleActive }
func (a *activeRole) state() State { return a.st }

type passiveRole struct {
	st              State
	coordinatorAddr string
	coordinatorID   protocol.StationID
	// coordinatorKey is pinned from configuration or the first JoinReply.
	coordinatorKey crypto.PublicKey
	joinSentAt     time.Time

	position    uint32
	ringSize    uint32
	predecessor protocol.Neighbor
	successor   protocol.Neighbor
	// prevPredecessor may still forward a token sent before it learned of a
	// topology change.
	prevPredecessor protocol.Neighbor

	// lingerSince is set once Leave is sent. Until the coordinator confirms the
	// departure, tokens are still passed on so none dies with this station.
	lingerSince time.Time

	// stalled holds a token whose forward failed, until a topology update
	// names a reachable successor.
	stalled      *protocol.Token
	stalledSince time.Time
}

func (p *passiveRole) name() Role   { return RolePassive }
func (p *passiveRole) state() State { return p.st }
