// Command member joins an existing ring.
//
// Lines read from stdin are broadcast to the ring, "@id text" sends to one
// station, and deliveries are printed to stdout. Interrupting the command
// leaves the ring.
//
// # Usage
//
//	go run ./cmd/member --id=alice --addr=:9001 --coordinator=http://localhost:9000 --password=hunter2
//	go run ./cmd/member --config=member.yaml
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/tokenring/cmd/common"
)

func main() {
	flags := common.RegisterFlags(flag.CommandLine)
	var (
		coordinator    = flag.String("coordinator", "", "Coordinator address")
		coordinatorKey = flag.String("coordinator-key", "", "Coordinator public key (hex), pinned from the first reply if empty")
	)
	flag.Parse()

	cfg, err := flags.Load()
	if err != nil {
		common.Fatal("config", err)
	}
	if flags.IsSet("coordinator") {
		cfg.Coordinator.Address = *coordinator
	}
	if flags.IsSet("coordinator-key") {
		cfg.Coordinator.PublicKey = *coordinatorKey
	}
	if err := cfg.Validate(true); err != nil {
		common.Fatal("configuration error", err)
	}
	log := common.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogJSON)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := common.Run(ctx, cfg, log, true, os.Stdin, os.Stdout); err != nil {
		common.Fatal("member", err)
	}
}
