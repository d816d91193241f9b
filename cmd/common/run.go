package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/flashbots/tokenring/station"
)

// Run starts a node, chats over in and out until ctx is done or the station
// stops, then shuts the node down.
func Run(ctx context.Context, cfg *Config, log *slog.Logger, member bool, in io.Reader, out io.Writer) error {
	node, err := NewNode(ctx, cfg, log, member)
	if err != nil {
		return err
	}

	node.Service.SetDeliveryCallback(func(d station.Delivery) {
		fmt.Fprintln(out, FormatDelivery(d))
	})
	node.Start(ctx)

	chatCtx, stopChat := context.WithCancel(ctx)
	defer stopChat()
	go func() {
		if err := Chat(chatCtx, node.Handle, in, out); err != nil {
			log.Error("reading input", "err", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case <-node.Handle.Done():
		log.Info("station stopped")
	}
	stopChat()
	return node.Shutdown()
}
