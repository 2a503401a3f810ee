// Package supervisor keeps a subscription to the relay's raw frame stream
// alive and publishes every decoded message into a sink.
//
// The loop never gives up on its own. Upstream outages, read failures and
// malformed frames are logged and retried or skipped; only cancellation of
// the context passed to Run stops it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/filter"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/freshness"
)

const cmp = "supervisor"

const (
	DefaultSinkPoll = 10 * time.Millisecond
	DefaultBackoff  = 100 * time.Millisecond
)

// Source is the upstream relay.
type Source interface {
	// State reports the relay's service state.
	State(ctx context.Context) (domain.StreamState, error)
	// Open starts a raw frame stream. Cancelling ctx aborts a pending Recv.
	Open(ctx context.Context) (Stream, error)
}

// Stream is one open subscription.
type Stream interface {
	// Recv blocks until the next batch arrives or the stream fails. A clean
	// end of stream is reported as an error.
	Recv() ([]domain.RawFrame, error)
	// Cancel releases the subscription. Safe to call more than once.
	Cancel()
}

// Sink receives stamped messages.
type Sink interface {
	// Ready reports whether a consumer is attached.
	Ready() bool
	Publish(freshness.Stamped)
}

// Phase is the supervisor's position in its loop.
type Phase int32

const (
	PhaseWaitingForSink Phase = iota
	PhasePollingUpstream
	PhaseStreamOpen
	PhaseStreamClosing
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingForSink:
		return "waiting_for_sink"
	case PhasePollingUpstream:
		return "polling_upstream"
	case PhaseStreamOpen:
		return "stream_open"
	case PhaseStreamClosing:
		return "stream_closing"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

type Config struct {
	// SinkPoll is how often the sink is checked before the first stream is
	// opened.
	SinkPoll time.Duration
	// Backoff is the wait after an unavailable upstream or a failed stream.
	Backoff time.Duration
	// Tap, if set, sees every frame of every batch before filtering.
	Tap func(domain.RawFrame)
}

func (c Config) withDefaults() Config {
	if c.SinkPoll <= 0 {
		c.SinkPoll = DefaultSinkPoll
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	return c
}

// Stats are cumulative counters. Safe to read while Run is active.
type Stats struct {
	Frames    uint64
	Matched   uint64
	Malformed uint64
	Published uint64
	Opens     uint64
	Faults    uint64
}

type Supervisor struct {
	src     Source
	filter  *filter.Filter
	tracker *freshness.Tracker
	sink    Sink
	cfg     Config
	log     *slog.Logger

	phase     atomic.Int32
	frames    atomic.Uint64
	matched   atomic.Uint64
	malformed atomic.Uint64
	published atomic.Uint64
	opens     atomic.Uint64
	faults    atomic.Uint64
}

func New(src Source, f *filter.Filter, tracker *freshness.Tracker, sink Sink, cfg Config) *Supervisor {
	if tracker == nil {
		tracker = freshness.NewTracker(nil)
	}
	return &Supervisor{
		src:     src,
		filter:  f,
		tracker: tracker,
		sink:    sink,
		cfg:     cfg.withDefaults(),
		log:     slog.Default().With("cmp", cmp),
	}
}

func (s *Supervisor) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Supervisor) Stats() Stats {
	return Stats{
		Frames:    s.frames.Load(),
		Matched:   s.matched.Load(),
		Malformed: s.malformed.Load(),
		Published: s.published.Load(),
		Opens:     s.opens.Load(),
		Faults:    s.faults.Load(),
	}
}

func (s *Supervisor) setPhase(p Phase) { s.phase.Store(int32(p)) }

// Run blocks until ctx is cancelled. Any open stream is cancelled before it
// returns.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.setPhase(PhaseStopped)

	if !s.waitForSink(ctx) {
		return
	}
	s.log.Info("sink attached", "node", domain.NodeName(s.filter.Node()), "identifiers", s.filter.Identifiers())

	var (
		stream   Stream
		handleID uuid.UUID
	)
	closeStream := func(reason error) {
		if stream == nil {
			return
		}
		s.setPhase(PhaseStreamClosing)
		stream.Cancel()
		s.log.Info("stream closed", "handle", handleID, "reason", reason)
		stream, handleID = nil, uuid.Nil
	}
	defer func() { closeStream(context.Cause(ctx)) }()

	for {
		if ctx.Err() != nil {
			return
		}
		s.setPhase(PhasePollingUpstream)

		state, err := s.src.State(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			state = domain.StateUnavailable
			s.log.Warn("state query failed", "error", err)
		}

		if !state.Streamable() {
			closeStream(fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, state))
			s.log.Debug("canbus service is not streaming or ready to stream", "state", state)
			if !sleep(ctx, s.cfg.Backoff) {
				return
			}
			continue
		}

		if stream == nil {
			st, err := s.src.Open(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.faults.Add(1)
				s.log.Warn("stream open failed", "state", state, "error", err)
				if !sleep(ctx, s.cfg.Backoff) {
					return
				}
				continue
			}
			stream, handleID = st, uuid.New()
			s.opens.Add(1)
			s.log.Info("stream opened", "handle", handleID, "state", state)
		}

		s.setPhase(PhaseStreamOpen)
		batch, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.faults.Add(1)
			if !errors.Is(err, domain.ErrTransportFault) {
				err = fmt.Errorf("%w: %w", domain.ErrTransportFault, err)
			}
			s.log.Warn("stream read failed", "handle", handleID, "error", err)
			closeStream(err)
			if !sleep(ctx, s.cfg.Backoff) {
				return
			}
			continue
		}

		s.process(batch)
	}
}

// process handles one batch in order. A bad frame never stops the batch.
func (s *Supervisor) process(batch []domain.RawFrame) {
	for _, frame := range batch {
		s.frames.Add(1)
		if s.cfg.Tap != nil {
			s.cfg.Tap(frame)
		}

		msg, matched, err := s.filter.Decode(frame)
		if !matched {
			continue
		}
		s.matched.Add(1)
		if err != nil {
			s.malformed.Add(1)
			s.log.Debug("skipping frame", "frame", frame.String(), "error", err)
			continue
		}

		s.sink.Publish(s.tracker.Stamp(msg))
		s.published.Add(1)
	}
}

func (s *Supervisor) waitForSink(ctx context.Context) bool {
	s.setPhase(PhaseWaitingForSink)
	if s.sink.Ready() {
		return true
	}

	ticker := time.NewTicker(s.cfg.SinkPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.sink.Ready() {
				return true
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
