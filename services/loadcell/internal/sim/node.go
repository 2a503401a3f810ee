package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

// A node is configured by a spec string. Two syntaxes are accepted:
//
//	Query style:  "load_cell?node=0x2a&period=10ms&wave=sine&amp=20&offset=100"
//	Path style:   "load_cell/node/sdk/period/10ms/wave/sine/amp/20/offset/100"
//
// Parameters:
//
//	kind:      load_cell | chatter. Taken from the leading name if not given.
//	type:      registered packet type for load_cell nodes (default load_cell_tpdo1).
//	node:      node id, numeric or by name (default sdk).
//	period:    Go duration between ticks (wins over rate).
//	rate:      ticks per second. Used if period absent.
//	pace:      const | poisson | onoff
//	on/off:    window durations for onoff pacing.
//	burst:     frames emitted per tick (>=1).
//	jitter:    ±fraction jitter on period.
//	wave:      const | sine | ramp | noise
//	amp:       waveform amplitude.
//	offset:    waveform offset.
//	freq:      waveform frequency in Hz.
//	malformed: probability in [0,1] that a frame has a wrong payload length.
//	drop:      1=non-blocking send (drop on backpressure), 0=block.
//	log:       1=emit per-second counters via slog.
//
// Chatter nodes send 8 random bytes with random identifiers that never
// collide with a registered packet type of their own node.

type kind int

const (
	kindLoadCell kind = iota
	kindChatter
)

type pace int

const (
	paceConst pace = iota
	pacePoisson
	paceOnOff
)

type wave int

const (
	waveConst wave = iota
	waveSine
	waveRamp
	waveNoise
)

type NodeConfig struct {
	Spec      string
	kind      kind
	typ       packet.Type
	node      uint32
	period    time.Duration
	periodSet bool
	rate      float64
	pace      pace
	onDur     time.Duration
	offDur    time.Duration
	burst     int
	jitter    float64
	wave      wave
	amp       float64
	offset    float64
	freq      float64
	malformed float64
	drop      bool
	logEvery  bool
}

func defaultNodeConfig() NodeConfig {
	return NodeConfig{
		kind:   kindLoadCell,
		typ:    packet.TypeLoadCellTpdo1,
		node:   domain.NodeSDK,
		period: 10 * time.Millisecond,
		pace:   paceConst,
		onDur:  time.Second,
		offDur: 500 * time.Millisecond,
		burst:  1,
		wave:   waveSine,
		amp:    25,
		offset: 100,
		freq:   0.5,
		drop:   true,
	}
}

// ParseNodeConfig parses a node spec string. Unknown keys are rejected so a
// typo does not silently fall back to a default.
func ParseNodeConfig(spec string) (NodeConfig, error) {
	c := defaultNodeConfig()
	c.Spec = spec
	if strings.TrimSpace(spec) == "" {
		return c, fmt.Errorf("empty node spec")
	}

	head, query, hasQuery := strings.Cut(spec, "?")
	parts := strings.Split(head, "/")
	if err := c.applyKV("kind", parts[0]); err != nil {
		return c, err
	}
	rest := parts[1:]
	if len(rest)%2 != 0 {
		return c, fmt.Errorf("node spec %q: dangling path key %q", spec, rest[len(rest)-1])
	}
	for i := 0; i+1 < len(rest); i += 2 {
		if err := c.applyKV(strings.ToLower(rest[i]), rest[i+1]); err != nil {
			return c, fmt.Errorf("node spec %q: %w", spec, err)
		}
	}

	if hasQuery {
		qv, err := url.ParseQuery(query)
		if err != nil {
			return c, fmt.Errorf("node spec %q: %w", spec, err)
		}
		for k, vals := range qv {
			if len(vals) == 0 {
				continue
			}
			if err := c.applyKV(strings.ToLower(k), vals[0]); err != nil {
				return c, fmt.Errorf("node spec %q: %w", spec, err)
			}
		}
	}

	c.sanitize()
	return c, nil
}

func (c *NodeConfig) applyKV(key, val string) error {
	bad := func() error { return fmt.Errorf("invalid %s %q", key, val) }

	switch key {
	case "kind":
		switch strings.ToLower(val) {
		case "load_cell", "loadcell", "":
			c.kind = kindLoadCell
		case "chatter", "noise":
			c.kind = kindChatter
		default:
			return bad()
		}
	case "type":
		t, ok := packet.Lookup(val)
		if !ok {
			return bad()
		}
		if _, err := packet.NewForce(t.Name, 0); err != nil {
			return err
		}
		c.typ = t
	case "node":
		n, err := domain.ParseNode(val)
		if err != nil {
			return err
		}
		c.node = n
	case "period":
		d, err := time.ParseDuration(val)
		if err != nil || d <= 0 {
			return bad()
		}
		c.period, c.periodSet = d, true
	case "rate":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return bad()
		}
		c.rate = f
	case "pace", "mode":
		switch strings.ToLower(val) {
		case "const", "steady":
			c.pace = paceConst
		case "poisson":
			c.pace = pacePoisson
		case "onoff", "burst":
			c.pace = paceOnOff
		default:
			return bad()
		}
	case "on", "off":
		d, err := time.ParseDuration(val)
		if err != nil || d < 0 {
			return bad()
		}
		if key == "on" {
			c.onDur = d
		} else {
			c.offDur = d
		}
	case "burst":
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return bad()
		}
		c.burst = n
	case "jitter":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f >= 1 {
			return bad()
		}
		c.jitter = f
	case "wave":
		switch strings.ToLower(val) {
		case "const":
			c.wave = waveConst
		case "sine":
			c.wave = waveSine
		case "ramp":
			c.wave = waveRamp
		case "noise":
			c.wave = waveNoise
		default:
			return bad()
		}
	case "amp", "offset", "freq":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return bad()
		}
		switch key {
		case "amp":
			c.amp = f
		case "offset":
			c.offset = f
		default:
			c.freq = f
		}
	case "malformed":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 1 {
			return bad()
		}
		c.malformed = f
	case "drop":
		c.drop = parseBool(val)
	case "log":
		c.logEvery = parseBool(val)
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func (c *NodeConfig) sanitize() {
	if !c.periodSet && c.rate > 0 {
		c.period = time.Duration(float64(time.Second) / c.rate)
	}
	if c.period <= 0 {
		c.period = 10 * time.Millisecond
	}
}

// CobID is the identifier load cell frames are sent with.
func (c NodeConfig) CobID() uint32 { return c.typ.Identifier(c.node).CobID() }

func (c NodeConfig) String() string {
	if c.kind == kindChatter {
		return fmt.Sprintf("chatter node=%s period=%s", domain.NodeName(c.node), c.period)
	}
	return fmt.Sprintf("%s node=%s cob=0x%03x period=%s", c.typ.Name, domain.NodeName(c.node), c.CobID(), c.period)
}

func parseBool(v string) bool { return v == "1" || strings.EqualFold(v, "true") }

// Node emits frames onto a bus.
type Node struct {
	cfg   NodeConfig
	start time.Time
	rng   *rand.Rand

	sent, dropped, malformed atomic.Uint64
}

func NewNode(cfg NodeConfig) *Node {
	return &Node{
		cfg:   cfg,
		start: time.Now(),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (n *Node) Config() NodeConfig { return n.cfg }

func (n *Node) Counters() (sent, dropped, malformed uint64) {
	return n.sent.Load(), n.dropped.Load(), n.malformed.Load()
}

// Run emits frames into out until ctx is cancelled.
func (n *Node) Run(ctx context.Context, out chan<- domain.RawFrame) {
	c := n.cfg
	n.start = time.Now()
	log := slog.Default().With("cmp", cmp, "node", c.String())
	log.Info("node started")
	defer log.Info("node stopped")

	var logTicker <-chan time.Time
	if c.logEvery {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		logTicker = t.C
	}
	var prevSent, prevDropped uint64

	inOn := true
	windowEnd := n.start.Add(c.onDur)

	for {
		if c.pace == paceOnOff {
			if now := time.Now(); now.After(windowEnd) {
				inOn = !inOn
				if inOn {
					windowEnd = now.Add(c.onDur)
				} else {
					windowEnd = now.Add(c.offDur)
				}
			}
		}

		if inOn {
			for i := 0; i < c.burst; i++ {
				if !n.emit(ctx, out) {
					return
				}
			}
		}

		timer := time.NewTimer(n.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-logTicker:
			timer.Stop()
			sent, dropped := n.sent.Load(), n.dropped.Load()
			log.Info("node counters", "sent_per_s", sent-prevSent, "dropped_per_s", dropped-prevDropped, "malformed", n.malformed.Load())
			prevSent, prevDropped = sent, dropped
		case <-timer.C:
		}
	}
}

func (n *Node) nextDelay() time.Duration {
	c := n.cfg
	switch c.pace {
	case pacePoisson:
		return time.Duration(n.rng.ExpFloat64() * float64(c.period))
	default:
		d := c.period
		if c.jitter > 0 {
			j := (n.rng.Float64()*2 - 1) * c.jitter
			d = time.Duration(float64(d) * (1 + j))
		}
		return max(d, 0)
	}
}

func (n *Node) emit(ctx context.Context, out chan<- domain.RawFrame) bool {
	f := n.frame(time.Now())

	if n.cfg.drop {
		select {
		case out <- f:
			n.sent.Add(1)
		default:
			n.dropped.Add(1)
		}
		return ctx.Err() == nil
	}
	select {
	case out <- f:
		n.sent.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

func (n *Node) frame(now time.Time) domain.RawFrame {
	c := n.cfg
	elapsed := now.Sub(n.start).Seconds()
	f := domain.RawFrame{RemoteStamp: elapsed, Received: now}

	if c.kind == kindChatter {
		f.ID = n.chatterID()
		f.Payload = make([]byte, 8)
		for i := range f.Payload {
			f.Payload[i] = byte(n.rng.UintN(256))
		}
		return f
	}

	f.ID = c.CobID()
	m, err := packet.NewForce(c.typ.Name, n.force(elapsed))
	if err != nil {
		panic(err)
	}
	f.Payload = m.Encode()
	if c.malformed > 0 && n.rng.Float64() < c.malformed {
		n.malformed.Add(1)
		f.Payload = n.malform(f.Payload)
	}
	return f
}

// force evaluates the waveform at t seconds.
func (n *Node) force(t float64) float64 {
	c := n.cfg
	switch c.wave {
	case waveSine:
		return c.offset + c.amp*math.Sin(2*math.Pi*c.freq*t)
	case waveRamp:
		_, frac := math.Modf(c.freq * t)
		return c.offset + c.amp*frac
	case waveNoise:
		return c.offset + c.amp*(n.rng.Float64()*2-1)
	default:
		return c.offset
	}
}

// malform returns a payload one to eight bytes too short or one byte too long.
func (n *Node) malform(p []byte) []byte {
	if n.rng.IntN(2) == 0 {
		return p[:n.rng.IntN(len(p))]
	}
	return append(p, 0xFF)
}

func (n *Node) chatterID() uint32 {
	reserved := map[uint32]bool{}
	for _, name := range packet.Names() {
		if t, ok := packet.Lookup(name); ok {
			reserved[t.Identifier(n.cfg.node).CobID()] = true
		}
	}
	for {
		id := uint32(n.rng.UintN(uint(domain.MaxStandardID) + 1))
		if !reserved[id] {
			return id
		}
	}
}
