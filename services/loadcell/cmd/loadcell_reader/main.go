package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/config"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/feed"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/filter"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/freshness"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/logging"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/relay"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/supervisor"
)

func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("loadcell_reader", flag.ContinueOnError)
	path := fs.String("config", "", "YAML or TOML config file")
	address := fs.String("address", "", "canbus relay address")
	port := fs.Int("canbus-port", 0, "canbus relay port (required)")
	everyN := fs.Uint("stream-every-n", 0, "forward every n-th frame only")
	node := fs.String("node", "", "node id or name (sdk, brain, dashboard, pendant)")
	httpAddr := fs.String("http", "", "websocket feed listen address")
	socketAddr := fs.String("socket", "", "JSON-lines feed listen address")
	printFlag := fs.Bool("print", false, "print readings to stdout")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return config.Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address":
			cfg.Relay.Address = *address
		case "canbus-port":
			cfg.Relay.Port = *port
		case "stream-every-n":
			cfg.Relay.EveryN = uint32(*everyN)
		case "node":
			cfg.Reader.Node = *node
		case "http":
			cfg.Feed.HTTPAddr = *httpAddr
		case "socket":
			cfg.Feed.SocketAddr = *socketAddr
		case "print":
			cfg.Feed.Print = *printFlag
		}
	})
	return cfg, cfg.Validate()
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))
	slog.Info("starting", "svc", "loadcell-reader", "relay", net.JoinHostPort(cfg.Relay.Address, fmt.Sprint(cfg.Relay.Port)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	node, _ := cfg.NodeID()
	types, _ := cfg.PacketTypes()
	f, err := filter.New(node, types...)
	if err != nil {
		slog.Error("filter setup failed", "err", err)
		os.Exit(1)
	}

	client, err := relay.Dial(relay.Config{
		Address:     cfg.Relay.Address,
		Port:        cfg.Relay.Port,
		EveryN:      cfg.Relay.EveryN,
		CallTimeout: cfg.Relay.CallTimeoutDuration(),
	})
	if err != nil {
		slog.Error("relay client failed", "err", err)
		os.Exit(1)
	}
	defer client.Close()

	slot := freshness.NewSlot()
	tracker := freshness.NewTracker(nil)
	threshold := cfg.Reader.ThresholdDuration()

	fd := feed.New(slot, tracker, feed.Config{
		Node:      node,
		Interval:  cfg.Feed.IntervalDuration(),
		Threshold: threshold,
	})

	var wg sync.WaitGroup
	serve := func(name, addr string, fn func(context.Context, net.Listener) error) {
		if addr == "" {
			return
		}
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Error("listen failed", "cmp", name, "addr", addr, "err", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx, lis); err != nil {
				slog.Error("serve failed", "cmp", name, "err", err)
				cancel()
			}
		}()
	}
	serve("feed-http", cfg.Feed.HTTPAddr, fd.ServeHTTP)
	serve("feed-socket", cfg.Feed.SocketAddr, fd.ServeSocket)

	sup := supervisor.New(client, f, tracker, slot, supervisor.Config{
		SinkPoll: cfg.Reader.SinkPollDuration(),
		Backoff:  cfg.Reader.BackoffDuration(),
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()

	if cfg.Feed.Print {
		// stdout is a consumer from the start.
		slot.MarkReady()
		wg.Add(1)
		go func() {
			defer wg.Done()
			printLoop(ctx, fd, cfg.Feed.IntervalDuration())
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down", "stats", fmt.Sprintf("%+v", sup.Stats()))
	wg.Wait()
}

// printLoop writes one line per new reading and flags readings that went
// stale.
func printLoop(ctx context.Context, fd *feed.Feed, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeq uint64
	var wasFresh bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := fd.Snapshot()
		switch {
		case snap.Seq != lastSeq && snap.Force != nil:
			fmt.Printf("%s 0x%03x force=%0.3f age=%.0fms\n", snap.Type, snap.CobID, *snap.Force, snap.AgeMs)
		case wasFresh && !snap.Fresh:
			fmt.Printf("%s stale age=%.0fms\n", snap.Type, snap.AgeMs)
		}
		lastSeq, wasFresh = snap.Seq, snap.Fresh
	}
}
