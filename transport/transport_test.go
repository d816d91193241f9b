package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flashbots/tokenring/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestMemoryLinkDelivers(t *testing.T) {
	hub := NewHub()
	a, err := hub.Link("a", 4)
	require.NoError(t, err)
	b, err := hub.Link("b", 4)
	require.NoError(t, err)

	_, err = hub.Link("a", 4)
	require.Error(t, err)

	ctx := context.Background()
	payload := []byte("packet")
	require.NoError(t, a.Send(ctx, "b", payload))
	payload[0] = 'X'

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("packet"), got)
}

func TestMemoryLinkUnreachable(t *testing.T) {
	hub := NewHub()
	a, err := hub.Link("a", 1)
	require.NoError(t, err)

	err = a.Send(context.Background(), "nobody", []byte("x"))
	require.True(t, protocol.IsKind(err, protocol.KindTransportFailure), err)

	_, err = hub.Link("b", 1)
	require.NoError(t, err)
	hub.Detach("b")
	err = a.Send(context.Background(), "b", []byte("x"))
	require.True(t, protocol.IsKind(err, protocol.KindTransportFailure), err)
}

func TestMemoryLinkBackpressureHonorsContext(t *testing.T) {
	hub := NewHub()
	a, err := hub.Link("a", 1)
	require.NoError(t, err)
	_, err = hub.Link("b", 1)
	require.NoError(t, err)

	require.NoError(t, a.Send(context.Background(), "b", []byte("1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = a.Send(ctx, "b", []byte("2"))
	require.True(t, protocol.IsKind(err, protocol.KindTransportFailure), err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLinkClose(t *testing.T) {
	hub := NewHub()
	a, err := hub.Link("a", 1)
	require.NoError(t, err)
	b, err := hub.Link("b", 1)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.Receive(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	err = a.Send(context.Background(), "b", []byte("x"))
	require.True(t, protocol.IsKind(err, protocol.KindTransportFailure), err)

	// The address can be reused after close.
	_, err = hub.Link("b", 1)
	require.NoError(t, err)
}

func newHTTPStation(t *testing.T) (*HTTPLink, *httptest.Server) {
	t.Helper()
	link := NewHTTPLink(HTTPLinkConfig{QueueSize: 2})
	r := chi.NewRouter()
	link.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		link.Close()
		srv.Close()
	})
	link.cfg.AdvertiseAddr = srv.URL
	return link, srv
}

func TestHTTPLinkDelivers(t *testing.T) {
	a, _ := newHTTPStation(t)
	b, _ := newHTTPStation(t)

	ctx := context.Background()
	require.NoError(t, a.Send(ctx, b.Addr(), []byte("hello")))
	got, err := b.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestHTTPLinkRejectsOversizedPacket(t *testing.T) {
	link := NewHTTPLink(HTTPLinkConfig{})
	defer link.Close()
	r := chi.NewRouter()
	link.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, PacketPath, strings.NewReader(strings.Repeat("x", MaxPacketSize+1)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHTTPLinkClosedPeer(t *testing.T) {
	a, _ := newHTTPStation(t)
	b, _ := newHTTPStation(t)
	require.NoError(t, b.Close())

	err := a.Send(context.Background(), b.Addr(), []byte("x"))
	require.True(t, protocol.IsKind(err, protocol.KindTransportFailure), err)
}

func TestPacketURL(t *testing.T) {
	require.Equal(t, "http://127.0.0.1:80/packet", packetURL("127.0.0.1:80"))
	require.Equal(t, "https://ring.example/packet", packetURL("https://ring.example/"))
}
