// Package freshness stamps decoded messages and tells whether the latest one
// is recent enough to trust.
package freshness

import (
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

// DefaultThreshold is a reasonable staleness limit for a display. Callers
// pass their own threshold; nothing in this package applies it implicitly.
const DefaultThreshold = 500 * time.Millisecond

// Clock returns the current time. Values must carry a monotonic reading or
// otherwise never go backwards.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is backed by time.Now, which carries a monotonic reading.
var SystemClock Clock = systemClock{}

// Stamped is a message with the local time it was decoded.
type Stamped struct {
	Message packet.Message
	Stamp   time.Time
}

// IsZero reports whether s has never been stamped.
func (s Stamped) IsZero() bool { return s.Stamp.IsZero() }

type Tracker struct {
	clock Clock
}

// NewTracker uses SystemClock when clock is nil.
func NewTracker(clock Clock) *Tracker {
	if clock == nil {
		clock = SystemClock
	}
	return &Tracker{clock: clock}
}

// Stamp attaches the current time to msg.
func (t *Tracker) Stamp(msg packet.Message) Stamped {
	return Stamped{Message: msg, Stamp: t.clock.Now()}
}

// Age is the time since s was stamped, never negative.
func (t *Tracker) Age(s Stamped) time.Duration {
	age := t.clock.Now().Sub(s.Stamp)
	if age < 0 {
		return 0
	}
	return age
}

// IsFresh reports whether s is younger than threshold. An unstamped value is
// never fresh.
func (t *Tracker) IsFresh(s Stamped, threshold time.Duration) bool {
	if s.IsZero() {
		return false
	}
	return t.Age(s) < threshold
}
