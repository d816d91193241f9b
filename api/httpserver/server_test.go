package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBaseServerRoutes(t *testing.T) {
	var inRing atomic.Bool
	inRing.Store(true)

	srv, err := New(&HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ready:      inRing.Load,
	}, pingRoutes{})
	require.NoError(t, err)
	h := srv.Handler()

	rec := get(t, h, "/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pong", rec.Body.String())

	require.Equal(t, http.StatusOK, get(t, h, "/livez").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)

	inRing.Store(false)
	require.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)
	inRing.Store(true)

	rec = get(t, h, "/drain")
	require.JSONEq(t, `{"status":"draining"}`, rec.Body.String())
	require.JSONEq(t, `{"status":"already draining"}`, get(t, h, "/drain").Body.String())
	require.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)
	require.False(t, srv.Ready())

	require.JSONEq(t, `{"status":"ready"}`, get(t, h, "/undrain").Body.String())
	require.True(t, srv.Ready())

	require.Equal(t, http.StatusNotFound, get(t, h, "/debug/pprof/").Code)
}

func TestBaseServerMetrics(t *testing.T) {
	srv, err := New(&HTTPServerConfig{})
	require.NoError(t, err)

	ring := srv.Metrics().Ring()
	ring.TokenForwards.Inc()

	rec := get(t, srv.Metrics().Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tokenring_token_forwards_total 1")
}
