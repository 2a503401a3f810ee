// Package filter routes raw bus frames to the message types registered for
// the local node.
package filter

import (
	"fmt"
	"sort"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

// Filter matches frames by exact cob id. Most bus traffic does not match and
// is dropped silently.
type Filter struct {
	node  uint32
	byCob map[uint32]packet.Type
}

// New registers types for the given node offset. Two types that resolve to
// the same cob id are rejected.
func New(node uint32, types ...packet.Type) (*Filter, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("filter requires at least one message type")
	}

	f := &Filter{
		node:  node,
		byCob: make(map[uint32]packet.Type, len(types)),
	}
	for _, t := range types {
		id := t.Identifier(node)
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		if prev, exists := f.byCob[id.CobID()]; exists {
			return nil, fmt.Errorf("%s and %s share cob id 0x%03x", prev.Name, t.Name, id.CobID())
		}
		f.byCob[id.CobID()] = t
	}
	return f, nil
}

func (f *Filter) Node() uint32 { return f.node }

// Identifiers lists the registered identifiers ordered by cob id.
func (f *Filter) Identifiers() []domain.Identifier {
	out := make([]domain.Identifier, 0, len(f.byCob))
	for _, t := range f.byCob {
		out = append(out, t.Identifier(f.node))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CobID() < out[j].CobID() })
	return out
}

// Match returns the type registered for the frame's identifier and the
// payload to decode.
func (f *Filter) Match(frame domain.RawFrame) (packet.Type, []byte, bool) {
	t, ok := f.byCob[frame.ID]
	if !ok {
		return packet.Type{}, nil, false
	}
	return t, frame.Payload, true
}

// Decode matches and decodes a frame. An unmatched frame returns
// (nil, false, nil); a matched frame that fails to decode returns the
// codec's error.
func (f *Filter) Decode(frame domain.RawFrame) (packet.Message, bool, error) {
	t, payload, ok := f.Match(frame)
	if !ok {
		return nil, false, nil
	}
	msg, err := t.Decode(payload)
	if err != nil {
		return nil, true, fmt.Errorf("frame 0x%03x: %w", frame.ID, err)
	}
	return msg, true, nil
}
