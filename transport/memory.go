package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// Hub connects in-process links by address.
type Hub struct {
	mu    sync.RWMutex
	links map[string]*MemoryLink
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{links: make(map[string]*MemoryLink)}
}

// Link attaches a new link at addr with an inbound queue of the given size.
func (h *Hub) Link(addr string, queue int) (*MemoryLink, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.links[addr]; exists {
		return nil, fmt.Errorf("address %q already attached", addr)
	}
	l := &MemoryLink{
		hub:     h,
		addr:    addr,
		inbound: make(chan []byte, queue),
		done:    make(chan struct{}),
	}
	h.links[addr] = l
	return l, nil
}

// Detach removes the link at addr, simulating an unreachable station.
// The link itself stays open for receiving whatever is already queued.
func (h *Hub) Detach(addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.links, addr)
}

func (h *Hub) lookup(addr string) (*MemoryLink, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l, ok := h.links[addr]
	return l, ok
}

// MemoryLink is a Link attached to a Hub.
type MemoryLink struct {
	hub     *Hub
	addr    string
	inbound chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (l *MemoryLink) Addr() string {
	return l.addr
}

// Send copies data into the inbound queue of the link at addr.
func (l *MemoryLink) Send(ctx context.Context, addr string, data []byte) error {
	select {
	case <-l.done:
		return transportError("send from closed link", ErrClosed)
	default:
	}
	if len(data) > MaxPacketSize {
		return transportError(fmt.Sprintf("packet of %d bytes exceeds limit", len(data)), nil)
	}

	peer, ok := l.hub.lookup(addr)
	if !ok {
		return transportError(fmt.Sprintf("no station at %q", addr), nil)
	}

	select {
	case peer.inbound <- bytes.Clone(data):
		return nil
	case <-peer.done:
		return transportError(fmt.Sprintf("station at %q closed", addr), ErrClosed)
	case <-ctx.Done():
		return transportError(fmt.Sprintf("send to %q", addr), ctx.Err())
	}
}

func (l *MemoryLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-l.inbound:
		return data, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *MemoryLink) Close() error {
	l.closeOnce.Do(func() {
		l.hub.mu.Lock()
		if l.hub.links[l.addr] == l {
			delete(l.hub.links, l.addr)
		}
		l.hub.mu.Unlock()
		close(l.done)
	})
	return nil
}
