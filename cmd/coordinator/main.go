// Command coordinator starts a ring and acts as its coordinator.
//
// The coordinator admits members, issues the token, and takes part in the
// chat like any member: lines read from stdin are broadcast, "@id text" sends
// to one station, and deliveries are printed to stdout.
//
// # Usage
//
//	go run ./cmd/coordinator --id=coord --addr=:9000 --password=hunter2
//	go run ./cmd/coordinator --config=coordinator.yaml
//
// Membership is written to Postgres when the config file has a postgres
// section. Interrupting the command closes the ring.
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
	flag.Parse()

	cfg, err := flags.Load()
	if err != nil {
		common.Fatal("config", err)
	}
	if err := cfg.Validate(false); err != nil {
		common.Fatal("configuration error", err)
	}
	log := common.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogJSON)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := common.Run(ctx, cfg, log, false, os.Stdin, os.Stdout); err != nil {
		common.Fatal("coordinator", err)
	}
}
