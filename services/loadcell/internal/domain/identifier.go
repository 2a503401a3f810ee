package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Node offsets of the well known participants on the bus.
const (
	NodeDashboard uint32 = 0x0E
	NodePendant   uint32 = 0x0F
	NodeBrain     uint32 = 0x1F
	NodeSDK       uint32 = 0x2A
)

// MaxStandardID is the largest 11-bit CAN identifier.
const MaxStandardID uint32 = 0x7FF

var nodeNames = map[string]uint32{
	"dashboard": NodeDashboard,
	"pendant":   NodePendant,
	"brain":     NodeBrain,
	"sdk":       NodeSDK,
}

// Identifier is a CAN object identifier split into the protocol-defined base
// of a message type and the node offset of the sender.
type Identifier struct {
	Base uint32
	Node uint32
}

func NewIdentifier(base, node uint32) Identifier { return Identifier{Base: base, Node: node} }

// CobID is the identifier carried in the frame envelope.
func (id Identifier) CobID() uint32 { return id.Base + id.Node }

func (id Identifier) String() string {
	return fmt.Sprintf("0x%03x+0x%02x", id.Base, id.Node)
}

// Validate rejects identifiers that do not fit a standard frame.
func (id Identifier) Validate() error {
	if id.CobID() > MaxStandardID {
		return fmt.Errorf("cob id 0x%x exceeds 11-bit range", id.CobID())
	}
	return nil
}

// ParseNode accepts a node name (sdk, brain, dashboard, pendant) or a number
// in any base strconv understands ("42", "0x2A").
func ParseNode(s string) (uint32, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.New("node cannot be empty")
	}
	if n, ok := nodeNames[s]; ok {
		return n, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node %q: %w", s, err)
	}
	if uint32(n) > MaxStandardID {
		return 0, fmt.Errorf("node 0x%x exceeds 11-bit range", n)
	}
	return uint32(n), nil
}

// NodeName returns the well known name of a node offset, or its hex form.
func NodeName(node uint32) string {
	for name, n := range nodeNames {
		if n == node {
			return name
		}
	}
	return fmt.Sprintf("0x%02x", node)
}
