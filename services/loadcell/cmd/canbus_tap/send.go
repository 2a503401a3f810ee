package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/relay"
)

type sendOptions struct {
	typeName string
	node     uint32
	count    int
	interval time.Duration
	forces   []float64
}

func parseSend(args []string) (common, sendOptions, error) {
	fs := flag.NewFlagSet("canbus_tap send", flag.ContinueOnError)
	c := bindCommon(fs)
	typeName := fs.String("type", packet.TypeLoadCellTpdo1.Name, "packet type to encode")
	count := fs.Int("count", 1, "times to send each value")
	interval := fs.Duration("interval", 10*time.Millisecond, "pause between sends")
	if err := fs.Parse(args); err != nil {
		return common{}, sendOptions{}, err
	}
	cfg, err := c.resolve(fs)
	if err != nil {
		return common{}, sendOptions{}, err
	}

	opts := sendOptions{typeName: *typeName, count: *count, interval: *interval}
	if opts.node, err = cfg.cfg.NodeID(); err != nil {
		return common{}, sendOptions{}, err
	}
	if opts.count < 1 {
		return common{}, sendOptions{}, fmt.Errorf("count must be at least 1")
	}
	if fs.NArg() == 0 {
		return common{}, sendOptions{}, fmt.Errorf("usage: canbus_tap send [flags] <force> [force...]")
	}
	for _, a := range fs.Args() {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return common{}, sendOptions{}, fmt.Errorf("force %q: %w", a, err)
		}
		opts.forces = append(opts.forces, v)
	}
	return cfg, opts, nil
}

// buildFrames encodes every force value as a frame of the chosen type.
func buildFrames(opts sendOptions) ([]domain.RawFrame, error) {
	t, ok := packet.Lookup(opts.typeName)
	if !ok {
		return nil, fmt.Errorf("unknown packet type %q", opts.typeName)
	}
	id := t.Identifier(opts.node)
	if err := id.Validate(); err != nil {
		return nil, err
	}

	frames := make([]domain.RawFrame, 0, len(opts.forces))
	for _, v := range opts.forces {
		m, err := packet.NewForce(t.Name, v)
		if err != nil {
			return nil, err
		}
		frames = append(frames, domain.RawFrame{ID: id.CobID(), Payload: m.Encode()})
	}
	return frames, nil
}

func runSend(ctx context.Context, client *relay.Client, opts sendOptions) error {
	frames, err := buildFrames(opts)
	if err != nil {
		return err
	}
	for i := 0; i < opts.count; i++ {
		for _, f := range frames {
			if err := client.Send(ctx, f); err != nil {
				return err
			}
			fmt.Printf("sent %s\n", f)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.interval):
			}
		}
	}
	return nil
}
