package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flashbots/tokenring/common"
	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/metrics"
	"github.com/flashbots/tokenring/protocol"
	"github.com/flashbots/tokenring/transport"
	"golang.org/x/sync/errgroup"
)

// Config contains the parameters shared by both station roles.
type Config struct {
	// ID names the station in the ring.
	ID protocol.StationID

	// KeyPair signs every packet this station sends.
	KeyPair *crypto.KeyPair

	// Ring holds protocol parameters.
	Ring protocol.RingConfig

	// Link attaches the station to the transport.
	Link transport.Link

	// Log is the structured logger. Defaults to slog.Default.
	Log *slog.Logger

	// Metrics receives station counters. Defaults to unregistered collectors.
	Metrics *metrics.RingMetrics

	// Now overrides the wall clock in tests.
	Now func() time.Time
}

// ActiveConfig configures a coordinator.
type ActiveConfig struct {
	Config

	// Store, if set, records membership changes.
	Store MembershipStore
}

// PassiveConfig configures a member.
type PassiveConfig struct {
	Config

	// CoordinatorAddr is the link address of the coordinator.
	CoordinatorAddr string

	// CoordinatorKey, if set, is the only key accepted for coordinator packets.
	// Otherwise the key signing the first JoinReply is pinned.
	CoordinatorKey crypto.PublicKey
}

// outgoing is a signed, encoded packet waiting for the send loop.
type outgoing struct {
	to   protocol.StationID
	addr string
	kind protocol.ContentType
	data []byte
}

// sendFailure reports an outgoing packet the link could not deliver.
type sendFailure struct {
	outgoing
	err error
}

// failureLog hands send failures to the dispatch loop without blocking the
// send loop, which may itself be what dispatch is waiting on.
type failureLog struct {
	mu      sync.Mutex
	pending []sendFailure
	signal  chan struct{}
}

func newFailureLog() *failureLog {
	return &failureLog{signal: make(chan struct{}, 1)}
}

func (l *failureLog) report(f sendFailure) {
	l.mu.Lock()
	l.pending = append(l.pending, f)
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *failureLog) take() []sendFailure {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := l.pending
	l.pending = nil
	return pending
}

// command runs on the dispatch goroutine.
type command struct {
	fn    func() error
	reply chan error
}

// Station runs one ring participant. All protocol state is owned by the
// dispatch goroutine; the receive and send loops only move bytes.
type Station struct {
	id      protocol.StationID
	kp      *crypto.KeyPair
	cfg     Config
	link    transport.Link
	log     *slog.Logger
	metrics *metrics.RingMetrics
	now     func() time.Time
	clock   *protocol.Clock
	replay  *protocol.ReplayGuard

	role      role
	outbox    outbox
	delivered map[protocol.StationID]uint64

	inbound    chan *protocol.Packet
	outbound   chan outgoing
	failures   *failureLog
	commands   chan command
	deliveries chan Delivery

	// done is closed when the dispatch loop must stop; nil outside Run.
	done <-chan struct{}
	// fatal ends the dispatch loop with an error after the current packet.
	fatal error
	// leaving closes the outbound queue after the current command.
	leaving bool
}

func newStation(cfg Config, r role) (*Station, error) {
	if cfg.KeyPair == nil {
		return nil, errors.New("station needs a key pair")
	}
	if cfg.Link == nil {
		return nil, errors.New("station needs a link")
	}
	if _, err := protocol.NewStationID(string(cfg.ID)); err != nil {
		return nil, err
	}
	if err := cfg.Ring.Validate(); err != nil {
		return nil, fmt.Errorf("ring config: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRingMetrics(common.PackageName, nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	q := cfg.Ring.QueueSize
	return &Station{
		id:      cfg.ID,
		kp:      cfg.KeyPair,
		cfg:     cfg,
		link:    cfg.Link,
		log:     cfg.Log.With("station", cfg.ID.String(), "role", r.name()),
		metrics: cfg.Metrics,
		now:     cfg.Now,
		clock:   protocol.NewClock(cfg.Now),
		replay:  protocol.NewReplayGuard(cfg.Ring.FreshnessWindow, cfg.Now),

		role:      r,
		outbox:    outbox{limit: q},
		delivered: make(map[protocol.StationID]uint64),

		inbound:    make(chan *protocol.Packet, q),
		outbound:   make(chan outgoing, q),
		failures:   newFailureLog(),
		commands:   make(chan command),
		deliveries: make(chan Delivery, q),
	}, nil
}

// NewActive creates a coordinator. It does not start it.
func NewActive(cfg ActiveConfig) (*Station, error) {
	self := Member{ID: cfg.ID, Address: cfg.Link.Addr()}
	if cfg.KeyPair != nil {
		self.PublicKey = cfg.KeyPair.PublicKey()
	}
	return newStation(cfg.Config, &activeRole{
		st:      StateForming,
		members: NewMembership(self),
		store:   cfg.Store,
	})
}

// NewPassive creates a member. It does not start it.
func NewPassive(cfg PassiveConfig) (*Station, error) {
	if cfg.CoordinatorAddr == "" {
		return nil, errors.New("passive station needs a coordinator address")
	}
	return newStation(cfg.Config, &passiveRole{
		st:              StateUnjoined,
		coordinatorAddr: cfg.CoordinatorAddr,
		coordinatorKey:  cfg.CoordinatorKey,
	})
}

// ID returns the station id.
func (s *Station) ID() protocol.StationID {
	return s.id
}

// Run drives the station until ctx is canceled, the station leaves, or a
// transport failure ends its session. Leaving and cancellation return nil.
func (s *Station) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.receiveLoop(gctx) })
	g.Go(func() error {
		// The dispatch loop closes outbound when it exits; once everything
		// queued is sent, the receive loop is stopped too.
		defer stop()
		return s.sendLoop(gctx)
	})
	g.Go(func() error { return s.dispatchLoop(gctx) })

	err := g.Wait()
	s.replay.Prune()
	s.log.Info("station stopped", "err", err)
	return err
}

func (s *Station) receiveLoop(ctx context.Context) error {
	for {
		data, err := s.link.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return protocol.WrapError(protocol.KindTransportFailure, "receive", err)
		}

		p, err := protocol.DecodePacket(data)
		if err != nil {
			s.drop(nil, err)
			continue
		}

		select {
		case s.inbound <- p:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Station) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out, ok := <-s.outbound:
			if !ok {
				return nil
			}
			err := s.link.Send(ctx, out.addr, out.data)
			if err == nil {
				s.metrics.PacketsTotal.WithLabelValues(out.kind.String(), metrics.OutcomeSent).Inc()
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.failures.report(sendFailure{outgoing: out, err: err})
		}
	}
}

func (s *Station) dispatchLoop(ctx context.Context) error {
	defer close(s.outbound)
	s.done = ctx.Done()

	if err := s.start(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.Ring.TokenInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-s.inbound:
			_ = s.handlePacket(p)
		case <-s.failures.signal:
			for _, f := range s.failures.take() {
				s.handleSendFailure(f)
			}
		case c := <-s.commands:
			c.reply <- c.fn()
		case <-ticker.C:
			s.tick()
		}

		if s.fatal != nil {
			return s.fatal
		}
		if s.leaving {
			return nil
		}
	}
}

// start performs the role's startup transition.
func (s *Station) start() error {
	switch r := s.role.(type) {
	case *activeRole:
		return s.startActive(r)
	case *passiveRole:
		return s.startPassive(r)
	}
	return nil
}

func (s *Station) tick() {
	s.replay.Prune()
	switch r := s.role.(type) {
	case *activeRole:
		s.tickActive(r)
	case *passiveRole:
		s.tickPassive(r)
	}
}

// handlePacket authenticates p and hands it to the role. Every failure drops
// the packet without changing state; the error is returned for callers that
// care why.
func (s *Station) handlePacket(p *protocol.Packet) error {
	err := p.Verify()
	if err == nil {
		err = s.replay.Check(p)
	}
	if err == nil {
		switch r := s.role.(type) {
		case *activeRole:
			err = s.handleActive(r, p)
		case *passiveRole:
			err = s.handlePassive(r, p)
		}
	}
	if err != nil {
		s.drop(p, err)
		return err
	}
	s.metrics.PacketsTotal.WithLabelValues(p.Content.Type().String(), metrics.OutcomeAccepted).Inc()
	return nil
}

func (s *Station) drop(p *protocol.Packet, err error) {
	kind := "unknown"
	if p != nil {
		kind = p.Content.Type().String()
	}
	outcome := string(protocol.KindOf(err))
	if outcome == "" {
		outcome = metrics.OutcomeDropped
	}
	s.metrics.PacketsTotal.WithLabelValues(kind, outcome).Inc()

	log := s.log.With("content", kind, "err", err)
	if p != nil {
		log = log.With("source", p.Source().String())
	}
	switch protocol.KindOf(err) {
	case protocol.KindProtocolViolation:
		log.Warn("dropped packet")
	case protocol.KindTransportFailure:
		log.Error("dropped packet")
	default:
		log.Debug("dropped packet")
	}
}

func (s *Station) handleSendFailure(f sendFailure) {
	switch r := s.role.(type) {
	case *activeRole:
		s.activeSendFailure(r, f)
	case *passiveRole:
		s.passiveSendFailure(r, f)
	}
}

// send signs content now and queues it for addr.
func (s *Station) send(to protocol.StationID, addr string, content protocol.Content) error {
	p, err := protocol.NewPacket(s.kp, s.id, s.clock.Now(), content)
	if err != nil {
		return err
	}
	return s.queue(to, addr, p)
}

func (s *Station) queue(to protocol.StationID, addr string, p *protocol.Packet) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	// Blocks on a full queue. The send loop never waits on dispatch, so it keeps
	// draining.
	select {
	case s.outbound <- outgoing{to: to, addr: addr, kind: p.Content.Type(), data: data}:
		return nil
	case <-s.done:
		return protocol.NewError(protocol.KindTransportFailure, "station stopping")
	}
}

// do runs fn on the dispatch goroutine.
func (s *Station) do(ctx context.Context, fn func() error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.commands <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue queues a Data frame for the next hold.
func (s *Station) enqueue(dest protocol.StationID, payload []byte) error {
	if dest == s.id {
		return errors.New("cannot send to self")
	}
	if len(payload) > 0xffff {
		return fmt.Errorf("payload of %d bytes exceeds frame limit", len(payload))
	}
	return s.outbox.pushData(protocol.Data{Destination: dest, Payload: append(make([]byte, 0, len(payload)), payload...)})
}
