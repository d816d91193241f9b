package station

import (
	"context"
	"fmt"
	"time"

	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/protocol"
)

const storeTimeout = 5 * time.Second

// startActive forms the ring: the coordinator creates the first token with no
// frames and starts operating. The token is issued on the next tick.
func (s *Station) startActive(a *activeRole) error {
	a.token = protocol.NewToken(s.id, s.clock.Now())
	a.st = StateOperating
	s.metrics.Members.Set(0)
	s.log.Info("ring formed", "address", s.link.Addr(), "publicKey", s.kp.PublicKey().Short())
	return nil
}

func (s *Station) tickActive(a *activeRole) {
	for id, d := range a.departed {
		if s.now().Sub(d.at) > s.cfg.Ring.MaxHoldTime {
			delete(a.departed, id)
		}
	}
	if a.inFlight {
		if !a.overrun && s.now().Sub(a.issuedAt) > s.cfg.Ring.MaxHoldTime {
			a.overrun = true
			s.metrics.HoldOverruns.Inc()
			s.log.Warn("token not returned within max hold time",
				"issued", a.issued.Timestamp, "elapsed", s.now().Sub(a.issuedAt), "ring", a.members.IDs())
		}
		return
	}
	if a.token != nil {
		s.activeTurn(a)
	}
}

// activeTurn is the coordinator's hold: it completes a rotation, refreshes the
// token and issues it to its successor, or keeps it when alone.
func (s *Station) activeTurn(a *activeRole) {
	t := a.token
	a.rotations++
	if a.rotations%uint64(s.cfg.Ring.RefreshEvery) == 0 {
		// Frames present at the previous issue have now been seen by every station.
		t.Prune(a.issuedFrames)
	}
	t.Header = protocol.TokenHeader{Sender: s.id, Timestamp: s.clock.Now()}
	if err := s.appendFrame(t); err != nil {
		s.log.Error("could not append frame", "err", err)
	}
	a.issued = t.Header
	a.issuedFrames = len(t.Frames)

	if a.members.Len() == 0 {
		// The token cycles straight back to the coordinator.
		return
	}
	s.forwardToken(a, a.members.At(1))
}

func (s *Station) forwardToken(a *activeRole, succ Member) {
	a.issuedCopy = a.token.Clone()
	if err := s.send(succ.ID, succ.Address, protocol.TokenPass{Token: a.token}); err != nil {
		s.log.Error("could not issue token", "successor", succ.ID.String(), "err", err)
		return
	}
	a.token = nil
	a.inFlight = true
	a.overrun = false
	a.issuedAt = s.now()
	s.metrics.TokenForwards.Inc()
}

func (s *Station) handleActive(a *activeRole, p *protocol.Packet) error {
	if a.st != StateOperating {
		return protocol.NewError(protocol.KindProtocolViolation, "ring not formed")
	}

	switch c := p.Content.(type) {
	case protocol.Join:
		return s.handleJoin(a, p, c)
	case protocol.Leave:
		return s.handleMemberLeave(a, p)
	case protocol.TokenPass:
		return s.handleTokenReturn(a, p, c.Token)
	}
	return protocol.NewError(protocol.KindProtocolViolation,
		fmt.Sprintf("coordinator does not accept %s", p.Content.Type()))
}

// member returns the member that signed p, or a protocol violation.
func (s *Station) member(a *activeRole, p *protocol.Packet) (Member, error) {
	m, ok := a.members.Get(p.Source())
	if !ok || m.ID == s.id {
		return Member{}, protocol.NewError(protocol.KindProtocolViolation, "not a ring member")
	}
	if !m.PublicKey.Equal(p.Header.PublicKey()) {
		return Member{}, protocol.NewError(protocol.KindProtocolViolation, "signed with a key other than the member's")
	}
	return m, nil
}

func (s *Station) handleJoin(a *activeRole, p *protocol.Packet, j protocol.Join) error {
	id := p.Source()
	pk := p.Header.PublicKey()

	if existing, ok := a.members.Get(id); ok {
		if id == s.id || !existing.PublicKey.Equal(pk) {
			return s.denyJoin(id, j.Address, "id in use")
		}
		// Repeated join: the member did not see its reply.
		return s.sendTopology(a, id)
	}

	switch {
	case j.Address == "":
		return protocol.NewError(protocol.KindProtocolViolation, "join without address")
	case !s.cfg.Ring.AcceptJoins:
		return s.denyJoin(id, j.Address, "ring closed")
	case s.cfg.Ring.MaxMembers > 0 && a.members.Len() >= s.cfg.Ring.MaxMembers:
		return s.denyJoin(id, j.Address, "ring full")
	case s.cfg.Ring.Password != "" &&
		!crypto.VerifyJoinProof(s.cfg.Ring.Password, string(id), p.Header.UnsafeValue().Timestamp, j.Proof):
		return s.denyJoin(id, j.Address, "bad join proof")
	}

	member := Member{ID: id, PublicKey: pk, Address: j.Address, JoinedAt: s.now()}
	pos, err := a.members.Add(member)
	if err != nil {
		return err
	}
	delete(a.departed, id)
	s.log.Info("member joined", "member", id.String(), "position", pos, "address", j.Address)
	s.metrics.Members.Set(float64(a.members.Len()))
	s.saveMember(a, member)

	if err := s.sendTopology(a, id); err != nil {
		return err
	}
	// The previous tail now forwards to the new member.
	if prev := a.members.At(pos - 1); prev.ID != s.id {
		return s.sendTopology(a, prev.ID)
	}
	return nil
}

func (s *Station) denyJoin(id protocol.StationID, addr, reason string) error {
	if addr != "" {
		if err := s.send(id, addr, protocol.JoinReply{Result: protocol.JoinDenied, Reason: reason}); err != nil {
			return err
		}
	}
	return protocol.NewError(protocol.KindJoinDenied, reason)
}

// sendTopology sends id its current position and neighbors.
func (s *Station) sendTopology(a *activeRole, id protocol.StationID) error {
	reply, ok := a.members.reply(id)
	if !ok {
		return fmt.Errorf("station %s not in ring", id)
	}
	m, _ := a.members.Get(id)
	return s.send(id, m.Address, reply)
}

func (s *Station) handleMemberLeave(a *activeRole, p *protocol.Packet) error {
	m, err := s.member(a, p)
	if err != nil {
		return err
	}
	s.evict(a, m.ID, "left")
	// Confirms the departure once the neighbors have been re-linked.
	return s.send(m.ID, m.Address, protocol.Leave{})
}

// evict removes id and tells its former neighbors about each other.
func (s *Station) evict(a *activeRole, id protocol.StationID, reason string) {
	pred, succ, ok := a.members.Neighbors(id)
	if !ok {
		return
	}
	if m, ok := a.members.Get(id); ok {
		if a.departed == nil {
			a.departed = make(map[protocol.StationID]departure)
		}
		a.departed[id] = departure{key: m.PublicKey, at: s.now()}
	}
	a.members.Remove(id)
	s.log.Info("member removed", "member", id.String(), "reason", reason, "ring", a.members.IDs())
	s.metrics.Members.Set(float64(a.members.Len()))
	s.deleteMember(a, id)

	for _, n := range []Member{pred, succ} {
		if n.ID == s.id || n.ID == id {
			continue
		}
		if err := s.sendTopology(a, n.ID); err != nil {
			s.log.Error("could not send topology update", "member", n.ID.String(), "err", err)
		}
	}
}

func (s *Station) handleTokenReturn(a *activeRole, p *protocol.Packet, t *protocol.Token) error {
	if !a.inFlight {
		return protocol.NewError(protocol.KindProtocolViolation, "token is not in flight")
	}
	from, err := s.tokenSender(a, p)
	if err != nil {
		return err
	}
	// The forwarder need not be the current predecessor: membership may have
	// changed while the token was in flight. The header pins the instance.
	if t.Header != a.issued {
		return protocol.NewError(protocol.KindProtocolViolation,
			fmt.Sprintf("token %s@%d was not issued by this coordinator", t.Header.Sender, t.Header.Timestamp))
	}
	if err := t.Validate(); err != nil {
		return err
	}

	if a.overrun {
		s.log.Info("late token returned", "from", from.String(), "elapsed", s.now().Sub(a.issuedAt))
	}
	s.receiveFrames(t)
	a.token = t
	a.issuedCopy = nil
	a.inFlight = false
	return nil
}

// tokenSender identifies the forwarder of a returning token: a current member,
// or one removed while the token was in flight.
func (s *Station) tokenSender(a *activeRole, p *protocol.Packet) (protocol.StationID, error) {
	m, err := s.member(a, p)
	if err == nil {
		return m.ID, nil
	}
	if d, ok := a.departed[p.Source()]; ok && d.key.Equal(p.Header.PublicKey()) {
		return p.Source(), nil
	}
	return "", err
}

func (s *Station) activeSendFailure(a *activeRole, f sendFailure) {
	if _, ok := a.members.Get(f.to); !ok || f.to == s.id {
		s.log.Debug("send failed to non-member", "to", f.to.String(), "err", f.err)
		return
	}
	s.log.Warn("member unreachable", "member", f.to.String(), "content", f.kind.String(), "err", f.err)

	// A failed token pass never reached anyone: the coordinator still holds it.
	var restored *protocol.Token
	if f.kind == protocol.ContentToken && a.inFlight {
		restored = a.issuedCopy
		a.issuedCopy = nil
		a.inFlight = false
	}

	s.evict(a, f.to, "unreachable")

	if restored != nil {
		a.token = restored
		if a.members.Len() > 0 {
			s.forwardToken(a, a.members.At(1))
		}
	}
}

// leaveActive tears the ring down: every member is told to leave.
func (s *Station) leaveActive(a *activeRole) error {
	for _, m := range a.members.Members() {
		if err := s.send(m.ID, m.Address, protocol.Leave{}); err != nil {
			return err
		}
	}
	s.log.Info("ring closed", "members", a.members.Len())
	a.st = StateLeft
	s.leaving = true
	return nil
}

func (s *Station) saveMember(a *activeRole, m Member) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.store.SaveMember(ctx, m); err != nil {
		s.log.Error("could not persist member", "member", m.ID.String(), "err", err)
	}
}

func (s *Station) deleteMember(a *activeRole, id protocol.StationID) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.store.DeleteMember(ctx, id); err != nil {
		s.log.Error("could not delete member", "member", id.String(), "err", err)
	}
}
