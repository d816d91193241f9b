package station

import (
	"fmt"
	"time"

	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/protocol"
)

func (s *Station) startPassive(r *passiveRole) error {
	return s.sendJoin(r)
}

// sendJoin asks the coordinator for admission. The join proof and the header
// share one timestamp.
func (s *Station) sendJoin(r *passiveRole) error {
	ts := s.clock.Now()
	join := protocol.Join{
		Address: s.link.Addr(),
		Proof:   crypto.JoinProof(s.cfg.Ring.Password, string(s.id), ts),
	}
	p, err := protocol.NewPacket(s.kp, s.id, ts, join)
	if err != nil {
		return err
	}
	if err := s.queue(r.coordinatorID, r.coordinatorAddr, p); err != nil {
		return err
	}
	r.st = StateAwaitingReply
	r.joinSentAt = s.now()
	s.log.Info("join requested", "coordinator", r.coordinatorAddr)
	return nil
}

func (s *Station) tickPassive(r *passiveRole) {
	elapsed := func(since time.Time) bool { return s.now().Sub(since) > s.cfg.Ring.MaxHoldTime }
	switch {
	case r.st == StateLeft && !r.lingerSince.IsZero() && elapsed(r.lingerSince):
		s.log.Info("departure not confirmed, stopping")
		s.leaving = true
	case r.st == StateAwaitingReply && elapsed(r.joinSentAt):
		s.log.Warn("no join reply, retrying", "coordinator", r.coordinatorAddr)
		if err := s.sendJoin(r); err != nil {
			s.log.Error("could not resend join", "err", err)
		}
	case r.stalled != nil && elapsed(r.stalledSince):
		s.fatal = protocol.NewError(protocol.KindTransportFailure,
			fmt.Sprintf("successor %s unreachable for %s", r.successor.ID, s.cfg.Ring.MaxHoldTime))
	}
}

func (s *Station) handlePassive(r *passiveRole, p *protocol.Packet) error {
	switch r.st {
	case StateAwaitingReply:
		reply, ok := p.Content.(protocol.JoinReply)
		if !ok {
			return protocol.NewError(protocol.KindProtocolViolation,
				fmt.Sprintf("%s received before join reply", p.Content.Type()))
		}
		return s.handleJoinReply(r, p, reply)

	case StateIdle:
		switch c := p.Content.(type) {
		case protocol.JoinReply:
			if err := s.fromCoordinator(r, p); err != nil {
				return err
			}
			if c.Result != protocol.JoinAccepted {
				return protocol.NewError(protocol.KindProtocolViolation, "denial after admission")
			}
			s.applyTopology(r, c)
			return nil
		case protocol.TokenPass:
			return s.holdToken(r, p, c.Token)
		case protocol.Leave:
			if err := s.fromCoordinator(r, p); err != nil {
				return err
			}
			s.log.Info("ring closed by coordinator")
			r.st = StateLeft
			s.leaving = true
			return nil
		}

	case StateLeft:
		if r.lingerSince.IsZero() {
			break
		}
		switch c := p.Content.(type) {
		case protocol.JoinReply:
			// Neighbors may still change before the coordinator sees our Leave.
			if err := s.fromCoordinator(r, p); err != nil {
				return err
			}
			if c.Result == protocol.JoinAccepted {
				s.applyTopology(r, c)
			}
			return nil
		case protocol.TokenPass:
			if err := s.fromPredecessor(r, p); err != nil {
				return err
			}
			s.forwardPassive(r, c.Token)
			return nil
		case protocol.Leave:
			if err := s.fromCoordinator(r, p); err != nil {
				return err
			}
			s.log.Info("departure confirmed")
			s.leaving = true
			return nil
		}
	}

	return protocol.NewError(protocol.KindProtocolViolation,
		fmt.Sprintf("%s not valid in state %s", p.Content.Type(), r.st))
}

// fromCoordinator checks p was signed by the pinned coordinator.
func (s *Station) fromCoordinator(r *passiveRole, p *protocol.Packet) error {
	if p.Source() != r.coordinatorID || !p.Header.PublicKey().Equal(r.coordinatorKey) {
		return protocol.NewError(protocol.KindProtocolViolation, "not signed by the coordinator")
	}
	return nil
}

func (s *Station) handleJoinReply(r *passiveRole, p *protocol.Packet, reply protocol.JoinReply) error {
	pk := p.Header.PublicKey()
	if !r.coordinatorKey.IsZero() && !pk.Equal(r.coordinatorKey) {
		return protocol.NewError(protocol.KindProtocolViolation, "join reply not signed by the configured coordinator key")
	}

	if reply.Result != protocol.JoinAccepted {
		r.st = StateLeft
		s.fatal = protocol.NewError(protocol.KindJoinDenied, reply.Reason)
		return nil
	}

	r.coordinatorKey = pk
	r.coordinatorID = p.Source()
	r.st = StateIdle
	s.applyTopology(r, reply)
	s.log.Info("joined ring", "coordinator", r.coordinatorID.String(), "coordinatorKey", pk.Short(),
		"position", reply.Position, "size", reply.RingSize)
	return nil
}

func (s *Station) applyTopology(r *passiveRole, reply protocol.JoinReply) {
	r.position = reply.Position
	r.ringSize = reply.RingSize
	if reply.Predecessor.ID != r.predecessor.ID {
		r.prevPredecessor = r.predecessor
	}
	r.predecessor = reply.Predecessor
	r.successor = reply.Successor
	s.log.Debug("topology updated", "position", reply.Position, "size", reply.RingSize,
		"predecessor", reply.Predecessor.ID.String(), "successor", reply.Successor.ID.String())

	if t := r.stalled; t != nil {
		r.stalled = nil
		s.forwardPassive(r, t)
	}
}

// fromPredecessor checks p was signed by the current or previous predecessor.
func (s *Station) fromPredecessor(r *passiveRole, p *protocol.Packet) error {
	for _, n := range []protocol.Neighbor{r.predecessor, r.prevPredecessor} {
		if n.ID != "" && p.Source() == n.ID && p.Header.PublicKey().Equal(n.PublicKey) {
			return nil
		}
	}
	return protocol.NewError(protocol.KindProtocolViolation, "token not from predecessor")
}

// holdToken is a member's turn: deliver, append at most one frame, forward.
func (s *Station) holdToken(r *passiveRole, p *protocol.Packet, t *protocol.Token) error {
	if err := s.fromPredecessor(r, p); err != nil {
		return err
	}
	if r.stalled != nil {
		return protocol.NewError(protocol.KindProtocolViolation, "already holding a token")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	r.st = StateHoldingToken
	s.receiveFrames(t)
	if err := s.appendFrame(t); err != nil {
		s.log.Error("could not append frame", "err", err)
	}
	s.forwardPassive(r, t)
	return nil
}

func (s *Station) forwardPassive(r *passiveRole, t *protocol.Token) {
	succ := r.successor
	if err := s.send(succ.ID, succ.Address, protocol.TokenPass{Token: t}); err != nil {
		s.log.Error("could not forward token", "successor", succ.ID.String(), "err", err)
	} else {
		s.metrics.TokenForwards.Inc()
	}
	if r.st == StateHoldingToken {
		r.st = StateIdle
	}
}

func (s *Station) passiveSendFailure(r *passiveRole, f sendFailure) {
	switch f.kind {
	case protocol.ContentToken:
		p, err := protocol.DecodePacket(f.data)
		if err != nil {
			s.fatal = err
			return
		}
		token := p.Content.(protocol.TokenPass).Token
		if f.to != r.successor.ID {
			// The topology changed after this forward was queued.
			s.forwardPassive(r, token)
			return
		}
		r.stalled = token
		r.stalledSince = s.now()
		s.log.Warn("successor unreachable, holding token until topology changes",
			"successor", f.to.String(), "err", f.err)

	case protocol.ContentJoin:
		if r.st == StateAwaitingReply {
			s.fatal = f.err
		}

	case protocol.ContentLeave:
		s.log.Debug("leave not delivered", "err", f.err)

	default:
		s.log.Warn("send failed", "to", f.to.String(), "content", f.kind.String(), "err", f.err)
	}
}

// leavePassive announces departure and passes on any stalled token. The
// station keeps forwarding until the coordinator confirms the departure.
func (s *Station) leavePassive(r *passiveRole) error {
	switch r.st {
	case StateUnjoined, StateAwaitingReply, StateLeft:
		r.st = StateLeft
		s.leaving = true
		return nil
	}

	if err := s.send(r.coordinatorID, r.coordinatorAddr, protocol.Leave{}); err != nil {
		return err
	}
	if t := r.stalled; t != nil {
		r.stalled = nil
		s.forwardPassive(r, t)
	}

	r.st = StateLeft
	r.lingerSince = s.now()
	s.log.Info("left ring")
	return nil
}
