package domain

import (
	"encoding/hex"
	"fmt"
	"time"
)

// RawFrame is a single frame as delivered by the relay. It is not modified
// after it has been received.
type RawFrame struct {
	ID      uint32
	Payload []byte

	// RemoteStamp is the relay's own monotonic stamp in seconds. It comes from
	// a different clock and is kept for diagnostics only.
	RemoteStamp float64

	// Received is the local receive time and carries a monotonic reading.
	Received time.Time
}

func (f RawFrame) String() string {
	return fmt.Sprintf("0x%03x [%d] %s", f.ID, len(f.Payload), hex.EncodeToString(f.Payload))
}
