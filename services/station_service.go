package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/flashbots/tokenring/protocol"
	"github.com/flashbots/tokenring/station"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"
)

// DeliveryCallback is invoked for every frame delivered to the station.
type DeliveryCallback func(station.Delivery)

// StationServiceConfig configures a StationService.
type StationServiceConfig struct {
	// History is how many recent deliveries are kept for GET /ring/messages.
	History int

	// AllowedOrigins for the read-only endpoints. Defaults to any origin.
	AllowedOrigins []string

	// RequestTimeout bounds calls into the station.
	RequestTimeout time.Duration

	Log *slog.Logger
}

// Message is a delivery with its position in the service's history.
type Message struct {
	Seq uint64 `json:"seq"`
	station.Delivery
}

// SendRequest is the body of POST /ring/messages. An empty destination
// broadcasts.
type SendRequest struct {
	Destination string `json:"destination,omitempty"`
	Payload     []byte `json:"payload"`
}

// StationService exposes a running station over HTTP and keeps a bounded
// history of its deliveries.
type StationService struct {
	handle *station.Handle
	cfg    StationServiceConfig
	log    *slog.Logger

	running atomic.Bool

	mu         sync.RWMutex
	history    []Message
	seq        uint64
	onDelivery DeliveryCallback
}

// NewStationService wraps handle.
func NewStationService(handle *station.Handle, cfg StationServiceConfig) *StationService {
	if cfg.History <= 0 {
		cfg.History = 256
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &StationService{
		handle: handle,
		cfg:    cfg,
		log:    cfg.Log.With("service", "station", "station", handle.ID().String()),
	}
}

// SetDeliveryCallback sets a callback invoked for each delivery, after it is
// recorded.
func (s *StationService) SetDeliveryCallback(cb DeliveryCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelivery = cb
}

// Run consumes deliveries until ctx is canceled or the station stops.
func (s *StationService) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.handle.Done():
			return
		case d := <-s.handle.Deliveries():
			s.record(d)
		}
	}
}

func (s *StationService) record(d station.Delivery) {
	s.mu.Lock()
	s.seq++
	s.history = append(s.history, Message{Seq: s.seq, Delivery: d})
	if over := len(s.history) - s.cfg.History; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	cb := s.onDelivery
	s.mu.Unlock()

	if cb != nil {
		cb(d)
	}
}

// Messages returns the recorded deliveries with a sequence number above since.
func (s *StationService) Messages(since uint64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Message{}
	for _, m := range s.history {
		if m.Seq > since {
			out = append(out, m)
		}
	}
	return out
}

// RegisterRoutes registers the ring API.
func (s *StationService) RegisterRoutes(r chi.Router) {
	r.Route("/ring", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.cfg.AllowedOrigins,
				AllowedMethods:   []string{"GET", "OPTIONS"},
				AllowedHeaders:   []string{"Accept"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Get("/status", s.handleStatus)
			r.Get("/members", s.handleMembers)
			r.Get("/messages", s.handleMessages)
		})
		r.Post("/messages", s.handleSend)
		r.Post("/leave", s.handleLeave)
	})
}

func (s *StationService) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *StationService) handleMembers(w http.ResponseWriter, r *http.Request) {
	st, err := s.status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if st.Role != station.RoleActive {
		http.Error(w, "membership is only known to the coordinator", http.StatusNotFound)
		return
	}
	members := st.Members
	if members == nil {
		members = []station.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *StationService) handleMessages(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}
	writeJSON(w, http.StatusOK, s.Messages(since))
}

func (s *StationService) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<17)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var dest protocol.StationID
	if req.Destination != "" {
		id, err := protocol.NewStationID(req.Destination)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dest = id
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	if err := s.handle.Send(ctx, dest, req.Payload); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *StationService) handleLeave(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	if err := s.handle.Leave(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("left ring on request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *StationService) status(ctx context.Context) (station.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.handle.Status(ctx)
}

func (s *StationService) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, station.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "station busy", http.StatusGatewayTimeout)
	default:
		s.log.Debug("request rejected", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Running reports whether Run is consuming deliveries.
func (s *StationService) Running() bool {
	return s.running.Load()
}
