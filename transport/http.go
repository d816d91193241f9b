package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// PacketPath is the route packets are posted to.
const PacketPath = "/packet"

// HTTPLinkConfig configures an HTTPLink.
type HTTPLinkConfig struct {
	// AdvertiseAddr is the host:port other stations post to.
	AdvertiseAddr string

	// QueueSize bounds the inbound queue.
	QueueSize int

	// Timeout bounds a single outbound request.
	Timeout time.Duration

	Log *slog.Logger
}

// HTTPLink exchanges packets as HTTP POST requests. It serves inbound packets
// through RegisterRoutes and must be mounted on a running server.
type HTTPLink struct {
	cfg     HTTPLinkConfig
	log     *slog.Logger
	client  *http.Client
	inbound chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewHTTPLink creates a link. Defaults are applied to zero config values.
func NewHTTPLink(cfg HTTPLinkConfig) *HTTPLink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &HTTPLink{
		cfg:     cfg,
		log:     cfg.Log,
		client:  &http.Client{Timeout: cfg.Timeout},
		inbound: make(chan []byte, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// RegisterRoutes mounts the packet endpoint.
func (l *HTTPLink) RegisterRoutes(r chi.Router) {
	r.Post(PacketPath, l.handlePacket)
}

func (l *HTTPLink) handlePacket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.done:
		http.Error(w, "link closed", http.StatusServiceUnavailable)
		return
	default:
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPacketSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	select {
	case l.inbound <- body:
		w.WriteHeader(http.StatusAccepted)
	case <-l.done:
		http.Error(w, "link closed", http.StatusServiceUnavailable)
	case <-r.Context().Done():
		l.log.Debug("inbound packet abandoned", "remote", r.RemoteAddr)
	}
}

func (l *HTTPLink) Addr() string {
	return l.cfg.AdvertiseAddr
}

func packetURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/") + PacketPath
	}
	return "http://" + addr + PacketPath
}

// Send posts data to the station at addr.
func (l *HTTPLink) Send(ctx context.Context, addr string, data []byte) error {
	select {
	case <-l.done:
		return transportError("send from closed link", ErrClosed)
	default:
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, packetURL(addr), bytes.NewReader(data))
	if err != nil {
		return transportError(fmt.Sprintf("build request for %q", addr), err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := l.client.Do(req)
	if err != nil {
		return transportError(fmt.Sprintf("post to %q", addr), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return transportError(fmt.Sprintf("post to %q: status %d: %s", addr, resp.StatusCode, bytes.TrimSpace(msg)), nil)
	}
	return nil
}

func (l *HTTPLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-l.inbound:
		return data, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *HTTPLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.client.CloseIdleConnections()
	})
	return nil
}
