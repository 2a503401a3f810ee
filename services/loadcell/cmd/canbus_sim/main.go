package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "gitlab.michelsen.id/phillmichelsen/loadcell/pkg/pb/canbus"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/config"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/logging"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/sim"
)

type nodesFlag []string

func (n *nodesFlag) String() string { return strings.Join(*n, ",") }
func (n *nodesFlag) Set(v string) error {
	if v == "" {
		return nil
	}
	*n = append(*n, v)
	return nil
}

func loadConfig(args []string) (config.Config, error) {
	var nodes nodesFlag
	fs := flag.NewFlagSet("canbus_sim", flag.ContinueOnError)
	path := fs.String("config", "", "YAML or TOML config file")
	address := fs.String("address", "", "listen address")
	port := fs.Int("canbus-port", 0, "listen port (required)")
	flapUp := fs.String("flap-up", "", "running window when flapping, e.g. 5s")
	flapDown := fs.String("flap-down", "", "unavailable window when flapping, e.g. 1s")
	fs.Var(&nodes, "node-spec", "synthetic node spec, e.g. load_cell?node=sdk&wave=sine; repeatable")
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
		case "flap-up":
			cfg.Sim.FlapUp = *flapUp
		case "flap-down":
			cfg.Sim.FlapDown = *flapDown
		}
	})
	if len(nodes) > 0 {
		cfg.Sim.Nodes = nodes
	}
	return cfg, cfg.Validate()
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format))
	slog.Info("starting", "svc", "canbus-sim")

	nodeCfgs := make([]sim.NodeConfig, 0, len(cfg.Sim.Nodes))
	for _, spec := range cfg.Sim.Nodes {
		nc, err := sim.ParseNodeConfig(spec)
		if err != nil {
			slog.Error("bad node spec", "err", err)
			os.Exit(2)
		}
		nodeCfgs = append(nodeCfgs, nc)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	bus := sim.NewBus(4096)
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.Run(ctx)
	}()

	srv := sim.NewServer(bus, sim.ServerConfig{FlushInterval: cfg.Sim.FlushIntervalDuration()})
	for _, nc := range nodeCfgs {
		n := sim.NewNode(nc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Run(ctx, bus.Incoming())
		}()
	}
	if up, down, ok := cfg.Sim.Flap(); ok {
		slog.Info("state flapping enabled", "cmp", "sim", "up", up, "down", down)
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.Flap(ctx, up, down)
		}()
	}

	grpcServer := grpc.NewServer()
	pb.RegisterCanbusServiceServer(grpcServer, srv)
	reflection.Register(grpcServer)

	addr := net.JoinHostPort(cfg.Relay.Address, strconv.Itoa(cfg.Relay.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("listen failed", "cmp", "grpc", "addr", addr, "err", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		grpcServer.Stop()
	}()

	slog.Info("listening", "cmp", "grpc", "addr", addr, "nodes", len(nodeCfgs))
	if err := grpcServer.Serve(lis); err != nil {
		slog.Error("serve failed", "cmp", "grpc", "err", err)
		cancel()
	}
	wg.Wait()
}
