package freshness_test

import (
	"sync"
	"testing"
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/freshness"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

func TestIsFreshThreshold(t *testing.T) {
	clock := newFakeClock()
	tr := freshness.NewTracker(clock)

	s := tr.Stamp(packet.LoadCellTpdo1{MeasuredForce: 1})
	if !tr.IsFresh(s, 500*time.Millisecond) {
		t.Fatalf("expected fresh immediately after stamping")
	}

	clock.Advance(300 * time.Millisecond)
	if !tr.IsFresh(s, 500*time.Millisecond) {
		t.Fatalf("expected fresh at 0.3s")
	}
	if got := tr.Age(s); got != 300*time.Millisecond {
		t.Fatalf("unexpected age: %v", got)
	}

	clock.Advance(300 * time.Millisecond)
	if tr.IsFresh(s, 500*time.Millisecond) {
		t.Fatalf("expected stale at 0.6s")
	}
}

func TestIsFreshBoundaryIsExclusive(t *testing.T) {
	clock := newFakeClock()
	tr := freshness.NewTracker(clock)
	s := tr.Stamp(packet.LoadCellTpdo1{})

	clock.Advance(freshness.DefaultThreshold)
	if tr.IsFresh(s, freshness.DefaultThreshold) {
		t.Fatalf("age equal to threshold must be stale")
	}
}

func TestAgeNeverNegative(t *testing.T) {
	clock := newFakeClock()
	tr := freshness.NewTracker(clock)
	s := tr.Stamp(packet.LoadCellTpdo1{})

	clock.Advance(-time.Second)
	if got := tr.Age(s); got != 0 {
		t.Fatalf("expected zero age, got %v", got)
	}
}

func TestUnstampedIsNeverFresh(t *testing.T) {
	tr := freshness.NewTracker(nil)
	if tr.IsFresh(freshness.Stamped{Message: packet.LoadCellTpdo1{}}, time.Hour) {
		t.Fatalf("unstamped value reported fresh")
	}
}

func TestSystemClockTracker(t *testing.T) {
	tr := freshness.NewTracker(nil)
	s := tr.Stamp(packet.LoadCellTpdo1{MeasuredForce: 2})
	if !tr.IsFresh(s, time.Minute) {
		t.Fatalf("expected fresh")
	}
	if tr.Age(s) < 0 {
		t.Fatalf("negative age")
	}
}

func TestSlot(t *testing.T) {
	slot := freshness.NewSlot()
	if slot.Ready() {
		t.Fatalf("slot ready before attach")
	}
	if _, ok := slot.Latest(); ok {
		t.Fatalf("empty slot returned a value")
	}

	slot.Publish(freshness.Stamped{Message: packet.LoadCellTpdo1{MeasuredForce: 1}})
	if _, ok := slot.Latest(); ok {
		t.Fatalf("unstamped value was published")
	}

	tr := freshness.NewTracker(newFakeClock())
	slot.Publish(tr.Stamp(packet.LoadCellTpdo1{MeasuredForce: 1}))
	slot.Publish(tr.Stamp(packet.LoadCellTpdo1{MeasuredForce: 2}))

	got, ok := slot.Latest()
	if !ok {
		t.Fatalf("expected value")
	}
	if got.Message.(packet.LoadCellTpdo1).MeasuredForce != 2 {
		t.Fatalf("expected last write to win, got %v", got.Message)
	}
	if slot.Seq() != 2 {
		t.Fatalf("unexpected seq: %d", slot.Seq())
	}

	slot.MarkReady()
	if !slot.Ready() {
		t.Fatalf("slot not ready after attach")
	}
}
