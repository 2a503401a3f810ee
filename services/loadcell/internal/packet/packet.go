// Package packet holds the CAN payload codecs of the load cell protocol.
//
// Every message type has a fixed payload layout and a protocol-defined base
// identifier. The frame envelope's identifier is the only type discriminator;
// payloads carry no header.
package packet

import (
	"fmt"
	"sort"
	"sync"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
)

// Message is a decoded application message.
type Message interface {
	// TypeName is the registered name of the message type.
	TypeName() string
	// Encode returns the wire payload.
	Encode() []byte
}

// Type describes one message type: its base identifier, its exact payload
// size and how to decode it.
type Type struct {
	Name string
	Base uint32
	Size int

	decode func([]byte) (Message, error)
}

// NewType builds a type with a custom decoder. The decoder is only called with
// payloads of exactly size bytes.
func NewType(name string, base uint32, size int, decode func([]byte) (Message, error)) Type {
	return Type{Name: name, Base: base, Size: size, decode: decode}
}

// Identifier returns the identifier the given node sends this type with.
func (t Type) Identifier(node uint32) domain.Identifier {
	return domain.NewIdentifier(t.Base, node)
}

// Decode checks the payload length and decodes it into a fresh value.
func (t Type) Decode(payload []byte) (Message, error) {
	if len(payload) != t.Size {
		return nil, &DecodeError{Type: t.Name, Got: len(payload), Want: t.Size}
	}
	return t.decode(payload)
}

// DecodeError reports a payload whose length does not match its type.
type DecodeError struct {
	Type string
	Got  int
	Want int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: payload size %d does not match %d", e.Type, e.Got, e.Want)
}

func (e *DecodeError) Unwrap() error { return domain.ErrMalformedPayload }

var (
	registryMu sync.RWMutex
	registry   = map[string]Type{}
)

// Register makes a type available to Lookup.
func Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("packet type requires a name")
	}
	if t.Size <= 0 {
		return fmt.Errorf("packet type %s has invalid size %d", t.Name, t.Size)
	}
	if t.decode == nil {
		return fmt.Errorf("packet type %s has no decoder", t.Name)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[t.Name]; exists {
		return fmt.Errorf("packet type %s already registered", t.Name)
	}
	registry[t.Name] = t
	return nil
}

// Lookup returns a registered type by name.
func Lookup(name string) (Type, bool) {
	registryMu.RLock()
	t, ok := registry[name]
	registryMu.RUnlock()
	return t, ok
}

// Names lists the registered type names in sorted order.
func Names() []string {
	registryMu.RLock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	registryMu.RUnlock()
	sort.Strings(out)
	return out
}

func mustRegister(t Type) Type {
	if err := Register(t); err != nil {
		panic(err)
	}
	return t
}
