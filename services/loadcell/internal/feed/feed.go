// Package feed pushes the latest load cell reading to displays.
//
// A feed reads the supervisor's slot and serves snapshots over a websocket
// endpoint and a JSON-lines TCP socket. Starting either server marks the slot
// ready, which lets the supervisor open its stream.
package feed

import (
	"encoding/hex"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/freshness"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

const cmp = "feed"

type Config struct {
	// Node is the node offset used to report cob ids.
	Node uint32
	// Interval between pushed snapshots.
	Interval time.Duration
	// Threshold is the staleness limit for the fresh flag.
	Threshold time.Duration
	// WriteTimeout bounds a single push to one client.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 50 * time.Millisecond
	}
	if c.Threshold <= 0 {
		c.Threshold = freshness.DefaultThreshold
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
	return c
}

// Snapshot is one pushed view of the slot. Force is omitted when nothing has
// been published or the reading is not a finite number.
type Snapshot struct {
	Type    string    `json:"type,omitempty"`
	CobID   uint32    `json:"cob_id,omitempty"`
	Force   *float64  `json:"force,omitempty"`
	Payload string    `json:"payload,omitempty"`
	AgeMs   float64   `json:"age_ms"`
	Fresh   bool      `json:"fresh"`
	Stamp   time.Time `json:"stamp,omitzero"`
	Seq     uint64    `json:"seq"`
}

type Feed struct {
	slot    *freshness.Slot
	tracker *freshness.Tracker
	cfg     Config
	log     *slog.Logger

	clients atomic.Int64
}

func New(slot *freshness.Slot, tracker *freshness.Tracker, cfg Config) *Feed {
	if tracker == nil {
		tracker = freshness.NewTracker(nil)
	}
	return &Feed{
		slot:    slot,
		tracker: tracker,
		cfg:     cfg.withDefaults(),
		log:     slog.Default().With("cmp", cmp),
	}
}

// Clients is the number of attached websocket and socket clients.
func (f *Feed) Clients() int64 { return f.clients.Load() }

// Snapshot reads the slot once.
func (f *Feed) Snapshot() Snapshot {
	s, ok := f.slot.Latest()
	if !ok {
		return Snapshot{Seq: f.slot.Seq()}
	}

	snap := Snapshot{
		Type:    s.Message.TypeName(),
		Payload: hex.EncodeToString(s.Message.Encode()),
		AgeMs:   float64(f.tracker.Age(s)) / float64(time.Millisecond),
		Fresh:   f.tracker.IsFresh(s, f.cfg.Threshold),
		Stamp:   s.Stamp,
		Seq:     f.slot.Seq(),
	}
	if t, ok := packet.Lookup(snap.Type); ok {
		snap.CobID = t.Identifier(f.cfg.Node).CobID()
	}
	if fm, ok := s.Message.(packet.Forcer); ok {
		if v := fm.Force(); !math.IsNaN(v) && !math.IsInf(v, 0) {
			snap.Force = &v
		}
	}
	return snap
}

func (f *Feed) attach() func() {
	f.clients.Add(1)
	return func() { f.clients.Add(-1) }
}
