package freshness

import (
	"sync/atomic"
)

// Slot holds the most recently published message. One writer, any number of
// readers; readers may observe a slightly old value.
type Slot struct {
	latest atomic.Pointer[Stamped]
	ready  atomic.Bool
	seq    atomic.Uint64
}

func NewSlot() *Slot { return &Slot{} }

// MarkReady signals that a consumer is attached.
func (s *Slot) MarkReady() { s.ready.Store(true) }

func (s *Slot) Ready() bool { return s.ready.Load() }

// Publish replaces the current value. Unstamped values are dropped.
func (s *Slot) Publish(v Stamped) {
	if v.IsZero() || v.Message == nil {
		return
	}
	s.latest.Store(&v)
	s.seq.Add(1)
}

// Latest returns the current value and false if nothing was published yet.
func (s *Slot) Latest() (Stamped, bool) {
	p := s.latest.Load()
	if p == nil {
		return Stamped{}, false
	}
	return *p, true
}

// Seq counts publishes. Readers use it to tell a new value from a repeat.
func (s *Slot) Seq() uint64 { return s.seq.Load() }
