package station

import (
	"context"
	"errors"
	"sync"

	"github.com/flashbots/tokenring/protocol"
)

// ErrStopped is returned by Handle methods once the station has stopped.
var ErrStopped = errors.New("station stopped")

// Handle is the application's view of a running station.
type Handle struct {
	s      *Station
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	started bool
	err     error
}

// Status describes a station at one instant.
type Status struct {
	ID    protocol.StationID `json:"id"`
	Role  Role               `json:"role"`
	State State              `json:"state"`

	Position    uint32             `json:"position"`
	RingSize    uint32             `json:"ring_size"`
	Predecessor protocol.StationID `json:"predecessor,omitempty"`
	Successor   protocol.StationID `json:"successor,omitempty"`

	// Pending counts frames waiting for the next hold.
	Pending int `json:"pending"`

	// Coordinator only.
	Members       []Member `json:"members,omitempty"`
	Rotations     uint64   `json:"rotations,omitempty"`
	HoldingToken  bool     `json:"holding_token,omitempty"`
	TokenFrames   int      `json:"token_frames,omitempty"`
	TokenInFlight bool     `json:"token_in_flight,omitempty"`
}

// StartActive starts a coordinator in the background.
func StartActive(ctx context.Context, cfg ActiveConfig) (*Handle, error) {
	s, err := NewActive(cfg)
	if err != nil {
		return nil, err
	}
	h := NewHandle(s)
	h.Start(ctx)
	return h, nil
}

// StartPassive starts a member that joins the ring at cfg.CoordinatorAddr.
func StartPassive(ctx context.Context, cfg PassiveConfig) (*Handle, error) {
	s, err := NewPassive(cfg)
	if err != nil {
		return nil, err
	}
	h := NewHandle(s)
	h.Start(ctx)
	return h, nil
}

// NewHandle wraps a station that is not running yet, so its HTTP routes can
// be mounted before the first packet is sent. Calls block until Start.
func NewHandle(s *Station) *Handle {
	return &Handle{s: s, cancel: func() {}, done: make(chan struct{})}
}

// Start runs the station in the background. The link is closed when it
// stops. Only the first call has an effect.
func (h *Handle) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true

	ctx, h.cancel = context.WithCancel(ctx)
	go func() {
		defer close(h.done)
		err := h.s.Run(ctx)
		if cerr := h.s.link.Close(); cerr != nil {
			h.s.log.Warn("could not close link", "err", cerr)
		}
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
	}()
}

// ID returns the station id.
func (h *Handle) ID() protocol.StationID {
	return h.s.id
}

func (h *Handle) do(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := h.s.do(ctx, fn)
	if err != nil && ctx.Err() != nil {
		select {
		case <-h.done:
			return ErrStopped
		default:
		}
	}
	return err
}

// Send queues payload for dest. An empty dest broadcasts to the ring.
func (h *Handle) Send(ctx context.Context, dest protocol.StationID, payload []byte) error {
	return h.do(ctx, func() error {
		return h.s.enqueue(dest, payload)
	})
}

// Deliveries yields frames addressed to this station.
func (h *Handle) Deliveries() <-chan Delivery {
	return h.s.deliveries
}

// Leave departs the ring and waits for the station to stop. For the
// coordinator this closes the ring.
func (h *Handle) Leave(ctx context.Context) error {
	err := h.do(ctx, func() error {
		var err error
		switch r := h.s.role.(type) {
		case *activeRole:
			err = h.s.leaveActive(r)
		case *passiveRole:
			err = h.s.leavePassive(r)
		}
		return err
	})
	if err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the station's current state.
func (h *Handle) Status(ctx context.Context) (Status, error) {
	var st Status
	err := h.do(ctx, func() error {
		st = h.s.status()
		return nil
	})
	return st, err
}

// Stop cancels the station without leaving the ring.
func (h *Handle) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	cancel()
}

// Done is closed once the station has stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the station stops and returns the reason.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (s *Station) status() Status {
	st := Status{
		ID:      s.id,
		Role:    s.role.name(),
		State:   s.role.state(),
		Pending: s.outbox.len(),
	}
	switch r := s.role.(type) {
	case *activeRole:
		st.RingSize = uint32(r.members.Size())
		pred, succ, _ := r.members.Neighbors(s.id)
		st.Predecessor, st.Successor = pred.ID, succ.ID
		st.Members = r.members.Members()
		st.Rotations = r.rotations
		st.HoldingToken = r.token != nil
		st.TokenInFlight = r.inFlight
		if r.token != nil {
			st.TokenFrames = len(r.token.Frames)
		}
	case *passiveRole:
		st.Position = r.position
		st.RingSize = r.ringSize
		st.Predecessor = r.predecessor.ID
		st.Successor = r.successor.ID
	}
	return st
}
