package station

import (
	"fmt"
	"slices"
	"time"

	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/protocol"
)

// Member is a ring station known to the coordinator.
type Member struct {
	ID        protocol.StationID `json:"id"`
	PublicKey crypto.PublicKey   `json:"public_key"`
	Address   string             `json:"address"`
	JoinedAt  time.Time          `json:"joined_at"`
}

func (m Member) neighbor() protocol.Neighbor {
	return protocol.Neighbor{ID: m.ID, PublicKey: m.PublicKey, Address: m.Address}
}

// Membership is the coordinator's ring table. Stations live in an arena and
// the ring is an ordered list of arena slots; neighbors are resolved by
// position, so members never reference each other. Slot 0 of the ring is
// always the coordinator itself.
type Membership struct {
	arena []Member
	free  []int
	index map[protocol.StationID]int
	ring  []int
}

// NewMembership creates a ring containing only the coordinator.
func NewMembership(coordinator Member) *Membership {
	return &Membership{
		arena: []Member{coordinator},
		index: map[protocol.StationID]int{coordinator.ID: 0},
		ring:  []int{0},
	}
}

// Coordinator returns the member at position 0.
func (m *Membership) Coordinator() Member {
	return m.arena[m.ring[0]]
}

// Len returns the number of members, excluding the coordinator.
func (m *Membership) Len() int {
	return len(m.ring) - 1
}

// Size returns the number of stations in the ring, including the coordinator.
func (m *Membership) Size() int {
	return len(m.ring)
}

// Get returns the station with the given id, including the coordinator.
func (m *Membership) Get(id protocol.StationID) (Member, bool) {
	slot, ok := m.index[id]
	if !ok {
		return Member{}, false
	}
	return m.arena[slot], true
}

// Add places a new member at the ring tail and returns its position.
func (m *Membership) Add(member Member) (int, error) {
	if _, exists := m.index[member.ID]; exists {
		return 0, fmt.Errorf("station %s already in ring", member.ID)
	}

	var slot int
	if n := len(m.free); n > 0 {
		slot = m.free[n-1]
		m.free = m.free[:n-1]
		m.arena[slot] = member
	} else {
		slot = len(m.arena)
		m.arena = append(m.arena, member)
	}
	m.index[member.ID] = slot
	m.ring = append(m.ring, slot)
	return len(m.ring) - 1, nil
}

// Remove unlinks a member. The ring closes over the gap: the former
// predecessor and successor become neighbors.
func (m *Membership) Remove(id protocol.StationID) (Member, bool) {
	slot, ok := m.index[id]
	if !ok || slot == m.ring[0] {
		return Member{}, false
	}

	member := m.arena[slot]
	m.ring = slices.DeleteFunc(m.ring, func(s int) bool { return s == slot })
	delete(m.index, id)
	m.arena[slot] = Member{}
	m.free = append(m.free, slot)
	return member, true
}

// Position returns the ring position of id. The coordinator is at 0.
func (m *Membership) Position(id protocol.StationID) (int, bool) {
	slot, ok := m.index[id]
	if !ok {
		return 0, false
	}
	return slices.Index(m.ring, slot), true
}

// At returns the station at ring position pos, wrapping around.
func (m *Membership) At(pos int) Member {
	n := len(m.ring)
	return m.arena[m.ring[((pos%n)+n)%n]]
}

// Neighbors returns the predecessor and successor of id. A coordinator alone
// in the ring is its own neighbor.
func (m *Membership) Neighbors(id protocol.StationID) (pred, succ Member, ok bool) {
	pos, ok := m.Position(id)
	if !ok {
		return Member{}, Member{}, false
	}
	return m.At(pos - 1), m.At(pos + 1), true
}

// Members returns the members in ring order, excluding the coordinator.
func (m *Membership) Members() []Member {
	out := make([]Member, 0, m.Len())
	for _, slot := range m.ring[1:] {
		out = append(out, m.arena[slot])
	}
	return out
}

// IDs returns the ring order including the coordinator.
func (m *Membership) IDs() []protocol.StationID {
	out := make([]protocol.StationID, 0, len(m.ring))
	for _, slot := range m.ring {
		out = append(out, m.arena[slot].ID)
	}
	return out
}

// reply builds the accepted JoinReply describing id's current place in the ring.
func (m *Membership) reply(id protocol.StationID) (protocol.JoinReply, bool) {
	pos, ok := m.Position(id)
	if !ok {
		return protocol.JoinReply{}, false
	}
	return protocol.JoinReply{
		Result:      protocol.JoinAccepted,
		Position:    uint32(pos),
		RingSize:    uint32(m.Size()),
		Predecessor: m.At(pos - 1).neighbor(),
		Successor:   m.At(pos + 1).neighbor(),
	}, true
}
