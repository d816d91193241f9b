package common

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/flashbots/tokenring/protocol"
	"github.com/flashbots/tokenring/station"
	"github.com/flashbots/tokenring/testutil"
	"github.com/flashbots/tokenring/transport"
	"github.com/stretchr/testify/require"
)

func TestParseChatLine(t *testing.T) {
	dest, msg, err := ParseChatLine("hello all")
	require.NoError(t, err)
	require.Empty(t, dest)
	require.Equal(t, "hello all", msg)

	dest, msg, err = ParseChatLine("@Bob  psst")
	require.NoError(t, err)
	require.Equal(t, protocol.StationID("bob"), dest)
	require.Equal(t, "psst", msg)

	_, _, err = ParseChatLine("@ nobody")
	require.Error(t, err)
}

func TestFormatDelivery(t *testing.T) {
	require.Equal(t, "/bob/: hi", FormatDelivery(station.Delivery{Kind: station.DeliveryData, From: "bob", Payload: []byte("hi")}))
	require.Equal(t, "/bob/ (to you): hi", FormatDelivery(station.Delivery{Kind: station.DeliveryData, From: "bob", Destination: "alice", Payload: []byte("hi")}))

	ref := protocol.FrameID{Sender: "alice", Timestamp: 7}
	require.Equal(t, "/bob/ received "+ref.String(), FormatDelivery(station.Delivery{Kind: station.DeliveryAck, From: "bob", Ref: ref}))
}

func TestChatSendsLines(t *testing.T) {
	hub := transport.NewHub()
	cfg := testutil.NewTestRingConfig()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	link, err := hub.Link("coord", cfg.QueueSize)
	require.NoError(t, err)
	coord, err := station.StartActive(context.Background(), station.ActiveConfig{Config: station.Config{
		ID: "coord", KeyPair: testutil.KeyPair(t, 1), Ring: cfg, Link: link, Log: discard,
	}})
	require.NoError(t, err)
	defer func() {
		coord.Stop()
		_ = coord.Wait()
	}()

	link, err = hub.Link("alice", cfg.QueueSize)
	require.NoError(t, err)
	alice, err := station.StartPassive(context.Background(), station.PassiveConfig{
		Config:          station.Config{ID: "alice", KeyPair: testutil.KeyPair(t, 2), Ring: cfg, Link: link, Log: discard},
		CoordinatorAddr: "coord",
	})
	require.NoError(t, err)
	defer func() {
		alice.Stop()
		_ = alice.Wait()
	}()

	var errOut bytes.Buffer
	in := strings.NewReader("\nhello ring\n@coord just you\n@coord\n@bad/id x\n")
	require.NoError(t, Chat(context.Background(), alice, in, &errOut))
	require.Contains(t, errOut.String(), "not sent")

	var got []station.Delivery
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case d := <-coord.Deliveries():
			got = append(got, d)
		case <-timeout:
			t.Fatalf("got %d deliveries", len(got))
		}
	}
	require.Equal(t, []byte("hello ring"), got[0].Payload)
	require.Empty(t, got[0].Destination)
	require.Equal(t, []byte("just you"), got[1].Payload)
	require.Equal(t, protocol.StationID("coord"), got[1].Destination)
	require.Empty(t, got[2].Payload)
}
