package sim_test

import (
	"context"
	"testing"
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/sim"
)

func recvFrame(t *testing.T, ch <-chan domain.RawFrame) domain.RawFrame {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return domain.RawFrame{}
}

func TestBusFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := sim.NewBus(16)
	go bus.Run(ctx)

	_, a := bus.Subscribe(4)
	_, b := bus.Subscribe(4)

	bus.Incoming() <- domain.RawFrame{ID: 0x1AA}
	bus.Incoming() <- domain.RawFrame{ID: 0x123}

	for _, ch := range []<-chan domain.RawFrame{a, b} {
		if f := recvFrame(t, ch); f.ID != 0x1AA {
			t.Fatalf("want 0x1aa first, got 0x%x", f.ID)
		}
		if f := recvFrame(t, ch); f.ID != 0x123 {
			t.Fatalf("want 0x123 second, got 0x%x", f.ID)
		}
	}
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := sim.NewBus(16)
	go bus.Run(ctx)

	_, slow := bus.Subscribe(1)
	_, fast := bus.Subscribe(16)

	for i := 0; i < 8; i++ {
		bus.Incoming() <- domain.RawFrame{ID: uint32(i)}
	}
	for i := 0; i < 8; i++ {
		if f := recvFrame(t, fast); f.ID != uint32(i) {
			t.Fatalf("fast subscriber: want %d got %d", i, f.ID)
		}
	}
	if f := recvFrame(t, slow); f.ID != 0 {
		t.Fatalf("slow subscriber: want first frame, got %d", f.ID)
	}
	select {
	case f := <-slow:
		t.Fatalf("slow subscriber should have dropped the rest, got %d", f.ID)
	default:
	}
}

func TestBusUnsubscribeAndDropAll(t *testing.T) {
	bus := sim.NewBus(1)

	id, a := bus.Subscribe(1)
	_, b := bus.Subscribe(1)
	if bus.Subscribers() != 2 {
		t.Fatalf("want 2 subscribers, got %d", bus.Subscribers())
	}

	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	if _, ok := <-a; ok {
		t.Fatalf("unsubscribed channel should be closed")
	}

	if n := bus.DropAll(); n != 1 {
		t.Fatalf("want 1 dropped, got %d", n)
	}
	if _, ok := <-b; ok {
		t.Fatalf("dropped channel should be closed")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("want no subscribers, got %d", bus.Subscribers())
	}
}
