// Package metrics defines the ring's prometheus collectors and the server
// that exports them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Packet outcomes recorded by RingMetrics.PacketsTotal.
const (
	OutcomeAccepted = "accepted"
	OutcomeDropped  = "dropped"
	OutcomeSent     = "sent"
)

// RingMetrics groups the collectors updated by a station.
type RingMetrics struct {
	// PacketsTotal counts packets by content kind and outcome. Drops use the
	// error kind as outcome.
	PacketsTotal *prometheus.CounterVec
	// TokenForwards counts token passes sent by this station.
	TokenForwards prometheus.Counter
	// FramesAppended counts frames appended by this station, by body type.
	FramesAppended *prometheus.CounterVec
	// HoldOverruns counts tokens that did not come back within max_hold_time.
	HoldOverruns prometheus.Counter
	// Members is the coordinator's current member count.
	Members prometheus.Gauge
}

// NewRingMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewRingMetrics(namespace string, reg prometheus.Registerer) *RingMetrics {
	m := &RingMetrics{
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets handled, by content kind and outcome.",
		}, []string{"kind", "outcome"}),
		TokenForwards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_forwards_total",
			Help:      "Token passes sent to the successor.",
		}),
		FramesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_appended_total",
			Help:      "Frames appended to the token, by body type.",
		}, []string{"body"}),
		HoldOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_overruns_total",
			Help:      "Token rotations that exceeded the maximum hold time.",
		}),
		Members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Ring members known to the coordinator.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PacketsTotal, m.TokenForwards, m.FramesAppended, m.HoldOverruns, m.Members)
	}
	return m
}

// MetricsServer serves a private prometheus registry on /metrics.
type MetricsServer struct {
	namespace string
	registry  *prometheus.Registry
	srv       *http.Server
}

// New creates a metrics server for addr. The server is created even when addr
// is empty so collectors can always be registered.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Timeout: 10 * time.Second}),
	))

	return &MetricsServer{
		namespace: namespace,
		registry:  registry,
		srv:       &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

// Registry returns the registry served by this server.
func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

// Ring creates station collectors registered with this server.
func (m *MetricsServer) Ring() *RingMetrics {
	return NewRingMetrics(m.namespace, m.registry)
}

// Handler returns the /metrics handler.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
