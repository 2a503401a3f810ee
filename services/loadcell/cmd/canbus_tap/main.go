package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/config"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/feed"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/filter"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/freshness"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/logging"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/relay"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/supervisor"
)

type commonFlags struct {
	path    *string
	address *string
	port    *int
	node    *string
	everyN  *uint
}

type common struct {
	cfg config.Config
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		path:    fs.String("config", "", "YAML or TOML config file"),
		address: fs.String("address", "", "canbus relay address"),
		port:    fs.Int("canbus-port", 0, "canbus relay port (required)"),
		node:    fs.String("node", "", "node id or name"),
		everyN:  fs.Uint("stream-every-n", 0, "forward every n-th frame only"),
	}
}

func (f *commonFlags) resolve(fs *flag.FlagSet) (common, error) {
	cfg, err := config.Load(*f.path)
	if err != nil {
		return common{}, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return common{}, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "address":
			cfg.Relay.Address = *f.address
		case "canbus-port":
			cfg.Relay.Port = *f.port
		case "node":
			cfg.Reader.Node = *f.node
		case "stream-every-n":
			cfg.Relay.EveryN = uint32(*f.everyN)
		}
	})
	return common{cfg: cfg}, cfg.Validate()
}

func (c common) dial() (*relay.Client, error) {
	return relay.Dial(relay.Config{
		Address:     c.cfg.Relay.Address,
		Port:        c.cfg.Relay.Port,
		EveryN:      c.cfg.Relay.EveryN,
		CallTimeout: c.cfg.Relay.CallTimeoutDuration(),
	})
}

// logToFile keeps log output away from the dashboard's screen.
func logToFile(cfg config.Config, path string) (func(), error) {
	if path == "" {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return func() {}, nil
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(fh, cfg.Log.Level, "json"))
	return func() { _ = fh.Close() }, nil
}

func runDashboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("canbus_tap", flag.ContinueOnError)
	cf := bindCommon(fs)
	refresh := fs.Duration("refresh", time.Second, "dashboard refresh interval")
	logFile := fs.String("log-file", "", "write logs to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	closeLog, err := logToFile(c.cfg, *logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	node, _ := c.cfg.NodeID()
	types, _ := c.cfg.PacketTypes()
	f, err := filter.New(node, types...)
	if err != nil {
		return err
	}
	matched := make(map[uint32]string, len(types))
	for _, t := range types {
		matched[t.Identifier(node).CobID()] = t.Name
	}

	client, err := c.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	slot := freshness.NewSlot()
	tracker := freshness.NewTracker(nil)
	stats := newCollector()
	sup := supervisor.New(client, f, tracker, slot, supervisor.Config{
		SinkPoll: c.cfg.Reader.SinkPollDuration(),
		Backoff:  c.cfg.Reader.BackoffDuration(),
		Tap:      stats.tap,
	})
	fd := feed.New(slot, tracker, feed.Config{Node: node, Threshold: c.cfg.Reader.ThresholdDuration()})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(runCtx)
	}()
	// The dashboard itself is the consumer.
	slot.MarkReady()

	target := relay.Config{Address: c.cfg.Relay.Address, Port: c.cfg.Relay.Port}.Target()
	p := tea.NewProgram(newModel(target, *refresh, sup, fd, stats, matched), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	cancel()
	<-done
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func runSendCmd(ctx context.Context, args []string) error {
	c, opts, err := parseSend(args)
	if err != nil {
		return err
	}
	slog.SetDefault(logging.New(os.Stderr, c.cfg.Log.Level, c.cfg.Log.Format))

	client, err := c.dial()
	if err != nil {
		return err
	}
	defer client.Close()
	return runSend(ctx, client, opts)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[1:]
	run := runDashboard
	if len(args) > 0 && args[0] == "send" {
		run, args = runSendCmd, args[1:]
	}

	if err := run(ctx, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		_, _ = fmt.Fprintf(os.Stderr, "canbus_tap: %v\n", err)
		os.Exit(1)
	}
}
