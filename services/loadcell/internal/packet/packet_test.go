package packet_test

import (
	"errors"
	"math"
	"testing"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

func TestLoadCellTpdo1RoundTrip(t *testing.T) {
	values := []float64{
		0,
		math.Copysign(0, -1),
		1,
		-1,
		12.345,
		-9876.54321,
		math.Pi,
		math.MaxFloat64,
		-math.MaxFloat64,
		math.SmallestNonzeroFloat64,
		math.Float64frombits(0x000FFFFFFFFFFFFF), // largest subnormal
		1e-300,
		math.Inf(1),
		math.Inf(-1),
	}

	for _, v := range values {
		payload := packet.LoadCellTpdo1{MeasuredForce: v}.Encode()
		if len(payload) != 8 {
			t.Fatalf("encode %v: got %d bytes", v, len(payload))
		}
		got, err := packet.DecodeLoadCellTpdo1(payload)
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if math.Float64bits(got.MeasuredForce) != math.Float64bits(v) {
			t.Fatalf("round trip %v: got %v", v, got.MeasuredForce)
		}
	}
}

func FuzzLoadCellTpdo1RoundTrip(f *testing.F) {
	for _, v := range []float64{0, math.Copysign(0, -1), 1, -9876.54321, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1)} {
		f.Add(math.Float64bits(v))
	}
	f.Fuzz(func(t *testing.T, bits uint64) {
		v := math.Float64frombits(bits)
		got, err := packet.DecodeLoadCellTpdo1(packet.LoadCellTpdo1{MeasuredForce: v}.Encode())
		if err != nil {
			t.Fatalf("decode %x: %v", bits, err)
		}
		if math.Float64bits(got.MeasuredForce) != bits {
			t.Fatalf("round trip %x: got %x", bits, math.Float64bits(got.MeasuredForce))
		}
	})
}

func FuzzLoadCellTpdo1Payload(f *testing.F) {
	f.Add([]byte{0, 0, 0, 0, 0, 0, 0xF0, 0x3F})
	f.Add([]byte{1, 2, 3})
	f.Fuzz(func(t *testing.T, payload []byte) {
		got, err := packet.DecodeLoadCellTpdo1(payload)
		if len(payload) != 8 {
			if !errors.Is(err, domain.ErrMalformedPayload) {
				t.Fatalf("%d byte payload: want malformed, got %v", len(payload), err)
			}
			return
		}
		if err != nil {
			t.Fatalf("decode % x: %v", payload, err)
		}
		if enc := got.Encode(); string(enc) != string(payload) {
			t.Fatalf("re-encode % x: got % x", payload, enc)
		}
	})
}

func TestLoadCellTpdo1NaNBitsSurvive(t *testing.T) {
	nan := math.Float64frombits(0x7FF8000000000123)
	got, err := packet.DecodeLoadCellTpdo1(packet.LoadCellTpdo1{MeasuredForce: nan}.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Float64bits(got.MeasuredForce) != 0x7FF8000000000123 {
		t.Fatalf("nan payload changed: %x", math.Float64bits(got.MeasuredForce))
	}
}

func TestEncodeIsLittleEndian(t *testing.T) {
	// 1.0 is 0x3FF0000000000000.
	payload := packet.LoadCellTpdo1{MeasuredForce: 1}.Encode()
	want := []byte{0, 0, 0, 0, 0, 0, 0xF0, 0x3F}
	for i := range want {
		if payload[i] != want[i] {
			t.Fatalf("unexpected payload: % x", payload)
		}
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 7, 9, 100} {
		_, err := packet.DecodeLoadCellTpdo1(make([]byte, n))
		if err == nil {
			t.Fatalf("length %d: expected error", n)
		}
		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Fatalf("length %d: expected malformed payload, got %v", n, err)
		}
		var de *packet.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("length %d: expected *DecodeError, got %T", n, err)
		}
		if de.Got != n || de.Want != 8 {
			t.Fatalf("length %d: unexpected error fields %+v", n, de)
		}
	}
}

func TestDecodeDoesNotAlias(t *testing.T) {
	payload := packet.LoadCellTpdo1{MeasuredForce: 3.5}.Encode()
	got, err := packet.DecodeLoadCellTpdo1(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range payload {
		payload[i] = 0xFF
	}
	if got.MeasuredForce != 3.5 {
		t.Fatalf("decoded value changed with payload: %v", got.MeasuredForce)
	}
}

func TestRegistry(t *testing.T) {
	tp, ok := packet.Lookup("load_cell_tpdo1")
	if !ok {
		t.Fatalf("tpdo1 not registered")
	}
	if tp.Base != 0x180 || tp.Size != 8 {
		t.Fatalf("unexpected tpdo1 type: %+v", tp)
	}
	if id := tp.Identifier(domain.NodeSDK); id.CobID() != 0x1AA {
		t.Fatalf("unexpected cob id: 0x%x", id.CobID())
	}

	if _, ok := packet.Lookup("missing"); ok {
		t.Fatalf("unexpected lookup hit")
	}

	names := packet.Names()
	if len(names) < 2 || names[0] != "load_cell_rpdo1" || names[1] != "load_cell_tpdo1" {
		t.Fatalf("unexpected names: %v", names)
	}

	if err := packet.Register(packet.TypeLoadCellTpdo1); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRpdo1Decode(t *testing.T) {
	msg, err := packet.TypeLoadCellRpdo1.Decode(packet.LoadCellRpdo1{MeasuredForce: -2.25}.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rp, ok := msg.(packet.LoadCellRpdo1)
	if !ok {
		t.Fatalf("unexpected type %T", msg)
	}
	if rp.Force() != -2.25 {
		t.Fatalf("unexpected force: %v", rp.Force())
	}
}

func TestNewForce(t *testing.T) {
	m, err := packet.NewForce("load_cell_rpdo1", 2.5)
	if err != nil {
		t.Fatalf("new force: %v", err)
	}
	if r, ok := m.(packet.LoadCellRpdo1); !ok || r.MeasuredForce != 2.5 {
		t.Fatalf("unexpected message %#v", m)
	}
	if _, err := packet.NewForce("unknown", 1); err == nil {
		t.Fatalf("unknown type should fail")
	}
}
