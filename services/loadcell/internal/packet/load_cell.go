package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

const forceSize = 8

// LoadCellTpdo1 is the force reading transmitted by the load cell node.
// Payload: float64 little endian.
type LoadCellTpdo1 struct {
	MeasuredForce float64
}

// LoadCellRpdo1 is the receive PDO of the load cell node. It shares the
// TPDO1 layout.
type LoadCellRpdo1 struct {
	MeasuredForce float64
}

var (
	TypeLoadCellTpdo1 = mustRegister(Type{
		Name: "load_cell_tpdo1",
		Base: 0x180,
		Size: forceSize,
		decode: func(b []byte) (Message, error) {
			return LoadCellTpdo1{MeasuredForce: decodeForce(b)}, nil
		},
	})

	TypeLoadCellRpdo1 = mustRegister(Type{
		Name: "load_cell_rpdo1",
		Base: 0x200,
		Size: forceSize,
		decode: func(b []byte) (Message, error) {
			return LoadCellRpdo1{MeasuredForce: decodeForce(b)}, nil
		},
	})
)

func (LoadCellTpdo1) TypeName() string { return TypeLoadCellTpdo1.Name }
func (m LoadCellTpdo1) Encode() []byte { return encodeForce(m.MeasuredForce) }
func (m LoadCellTpdo1) Force() float64 { return m.MeasuredForce }
func (m LoadCellTpdo1) String() string { return fmt.Sprintf("LOAD CELL TPDO1 Force %0.3f", m.MeasuredForce) }
func (LoadCellRpdo1) TypeName() string { return TypeLoadCellRpdo1.Name }
func (m LoadCellRpdo1) Encode() []byte { return encodeForce(m.MeasuredForce) }
func (m LoadCellRpdo1) Force() float64 { return m.MeasuredForce }
func (m LoadCellRpdo1) String() string { return fmt.Sprintf("LOAD CELL RPDO1 Force %0.3f", m.MeasuredForce) }

// DecodeLoadCellTpdo1 decodes an 8 byte payload.
func DecodeLoadCellTpdo1(b []byte) (LoadCellTpdo1, error) {
	m, err := TypeLoadCellTpdo1.Decode(b)
	if err != nil {
		return LoadCellTpdo1{}, err
	}
	return m.(LoadCellTpdo1), nil
}

// Forcer is implemented by messages that carry a force reading.
type Forcer interface {
	Force() float64
}

func encodeForce(v float64) []byte {
	buf := make([]byte, forceSize)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeForce(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// NewForce builds a force-carrying message of the named type.
func NewForce(name string, force float64) (Message, error) {
	switch name {
	case TypeLoadCellTpdo1.Name:
		return LoadCellTpdo1{MeasuredForce: force}, nil
	case TypeLoadCellRpdo1.Name:
		return LoadCellRpdo1{MeasuredForce: force}, nil
	default:
		return nil, fmt.Errorf("packet type %q carries no force reading", name)
	}
}
