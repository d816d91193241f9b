package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashbots/tokenring/api/httpserver"
	tokencommon "github.com/flashbots/tokenring/common"
	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/metrics"
	"github.com/flashbots/tokenring/protocol"
	"github.com/flashbots/tokenring/services"
	"github.com/flashbots/tokenring/station"
	"github.com/flashbots/tokenring/transport"
)

// Node is a station together with its HTTP server and ring API.
type Node struct {
	Handle  *station.Handle
	Service *services.StationService
	Server  *httpserver.BaseServer

	cfg   *Config
	log   *slog.Logger
	store services.Store
}

// NewNode builds a coordinator, or a member when member is true. Nothing
// runs until Start.
func NewNode(ctx context.Context, cfg *Config, log *slog.Logger, member bool) (*Node, error) {
	id, err := protocol.NewStationID(cfg.StationID)
	if err != nil {
		return nil, err
	}
	kp, err := LoadOrGenerateKeyPair(cfg.Keys)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	log.Info("station key", "station", id.String(), "publicKey", kp.PublicKey().String())

	ms, err := metrics.New(tokencommon.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}
	link := transport.NewHTTPLink(transport.HTTPLinkConfig{
		AdvertiseAddr: cfg.Advertise(),
		QueueSize:     cfg.Ring.QueueSize,
		Log:           log,
	})
	base := station.Config{
		ID:      id,
		KeyPair: kp,
		Ring:    cfg.Ring,
		Link:    link,
		Log:     log,
		Metrics: ms.Ring(),
	}

	n := &Node{cfg: cfg, log: log}
	var s *station.Station
	if member {
		s, err = newMember(cfg, base)
	} else {
		s, err = n.newCoordinator(ctx, base)
	}
	if err != nil {
		n.closeStore()
		return nil, err
	}

	n.Handle = station.NewHandle(s)
	n.Service = services.NewStationService(n.Handle, services.StationServiceConfig{
		History: cfg.History,
		Log:     log,
	})
	n.Server, err = httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		Metrics:                  ms,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		Ready:                    n.inRing,
		GracefulShutdownDuration: cfg.ShutdownTimeout,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, link, n.Service)
	if err != nil {
		n.closeStore()
		return nil, err
	}
	return n, nil
}

func newMember(cfg *Config, base station.Config) (*station.Station, error) {
	pc := station.PassiveConfig{Config: base, CoordinatorAddr: cfg.Coordinator.Address}
	if cfg.Coordinator.PublicKey != "" {
		pk, err := crypto.NewPublicKeyFromString(cfg.Coordinator.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("coordinator.public_key: %w", err)
		}
		pc.CoordinatorKey = pk
	}
	return station.NewPassive(pc)
}

func (n *Node) newCoordinator(ctx context.Context, base station.Config) (*station.Station, error) {
	ac := station.ActiveConfig{Config: base}
	if n.cfg.Postgres != nil {
		store, err := services.NewPostgresStore(ctx, n.cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("membership store: %w", err)
		}
		n.store = store

		previous, err := store.LoadMembers(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading members: %w", err)
		}
		if len(previous) > 0 {
			n.log.Warn("discarding members of a previous ring", "members", len(previous))
		}
		if err := store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("resetting members: %w", err)
		}
		ac.Store = store
	}
	return station.NewActive(ac)
}

func (n *Node) inRing() bool {
	select {
	case <-n.Handle.Done():
		return false
	default:
		return true
	}
}

// Start serves HTTP, then starts the station and the delivery consumer.
func (n *Node) Start(ctx context.Context) {
	n.Server.RunInBackground()
	n.Handle.Start(ctx)
	go n.Service.Run(ctx)
}

// Shutdown leaves the ring, if still in it, and stops the servers.
func (n *Node) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if n.inRing() {
		if err := n.Handle.Leave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("leaving ring: %w", err))
			n.Handle.Stop()
		}
	}
	if err := n.Handle.Wait(); err != nil {
		errs = append(errs, err)
	}
	n.Server.Shutdown()
	n.closeStore()
	return errors.Join(errs...)
}

func (n *Node) closeStore() {
	if n.store == nil {
		return
	}
	if err := n.store.Close(); err != nil {
		n.log.Error("could not close membership store", "err", err)
	}
}
