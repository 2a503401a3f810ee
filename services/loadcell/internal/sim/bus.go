// Package sim is an in-process stand-in for the canbus relay: a frame bus,
// synthetic nodes that talk on it and a gRPC server that exposes it.
package sim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
)

const cmp = "sim"

// Bus fans every incoming frame out to all subscribers. A subscriber that
// falls behind loses frames; the bus never blocks on it.
type Bus struct {
	incoming chan domain.RawFrame
	subs     map[uuid.UUID]chan domain.RawFrame
	mu       sync.RWMutex
}

func NewBus(buffer int) *Bus {
	return &Bus{
		incoming: make(chan domain.RawFrame, buffer),
		subs:     make(map[uuid.UUID]chan domain.RawFrame),
	}
}

func (b *Bus) Incoming() chan<- domain.RawFrame {
	return b.incoming
}

// Run delivers frames until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	slog.Default().Info("bus started", "cmp", cmp)
	for {
		select {
		case <-ctx.Done():
			slog.Default().Info("bus stopped", "cmp", cmp)
			return
		case f := <-b.incoming:
			b.deliver(f)
		}
	}
}

func (b *Bus) deliver(f domain.RawFrame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- f:
		default:
			slog.Default().Warn("dropping frame due to backpressure", "cmp", cmp, "subscriber", id, "frame_id", f.ID)
		}
	}
}

// Subscribe registers a new receiver with the given buffer.
func (b *Bus) Subscribe(buffer int) (uuid.UUID, <-chan domain.RawFrame) {
	id := uuid.New()
	ch := make(chan domain.RawFrame, buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	slog.Default().Debug("subscribed", "cmp", cmp, "subscriber", id)
	return id, ch
}

// Unsubscribe closes the subscriber's channel. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()

	if ok {
		slog.Default().Debug("unsubscribed", "cmp", cmp, "subscriber", id)
	}
}

// DropAll closes every subscriber channel.
func (b *Bus) DropAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.subs)
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return n
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
