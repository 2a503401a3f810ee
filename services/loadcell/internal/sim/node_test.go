package sim

import (
	"errors"
	"testing"
	"time"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/packet"
)

func TestParseNodeConfigQuery(t *testing.T) {
	c, err := ParseNodeConfig("load_cell?node=0x0f&period=20ms&wave=const&offset=42.5&malformed=0.25&burst=3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.kind != kindLoadCell || c.node != domain.NodePendant || c.period != 20*time.Millisecond {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.wave != waveConst || c.offset != 42.5 || c.malformed != 0.25 || c.burst != 3 {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.CobID() != 0x18F {
		t.Fatalf("want cob 0x18f, got 0x%x", c.CobID())
	}
}

func TestParseNodeConfigPath(t *testing.T) {
	c, err := ParseNodeConfig("load_cell/node/brain/type/load_cell_rpdo1/rate/50/pace/poisson")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.typ.Name != packet.TypeLoadCellRpdo1.Name || c.node != domain.NodeBrain {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.period != 20*time.Millisecond || c.pace != pacePoisson {
		t.Fatalf("unexpected pacing %s %d", c.period, c.pace)
	}
	if c.CobID() != 0x21F {
		t.Fatalf("want cob 0x21f, got 0x%x", c.CobID())
	}
}

func TestParseNodeConfigPeriodWinsOverRate(t *testing.T) {
	c, err := ParseNodeConfig("load_cell?rate=1000&period=7ms")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.period != 7*time.Millisecond {
		t.Fatalf("want 7ms, got %s", c.period)
	}
}

func TestParseNodeConfigRejects(t *testing.T) {
	for _, spec := range []string{
		"",
		"thermometer",
		"load_cell?colour=red",
		"load_cell?period=-1s",
		"load_cell?malformed=2",
		"load_cell?node=0x800",
		"load_cell?type=nope",
		"load_cell/period",
	} {
		if _, err := ParseNodeConfig(spec); err == nil {
			t.Fatalf("%q: expected error", spec)
		}
	}
}

func TestNodeFrameDecodes(t *testing.T) {
	c, err := ParseNodeConfig("load_cell?wave=const&offset=12.25")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n := NewNode(c)

	f := n.frame(time.Now())
	if f.ID != 0x1AA {
		t.Fatalf("want 0x1aa, got 0x%x", f.ID)
	}
	m, err := packet.DecodeLoadCellTpdo1(f.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.MeasuredForce != 12.25 {
		t.Fatalf("want 12.25, got %v", m.MeasuredForce)
	}
}

func TestNodeMalformedFrames(t *testing.T) {
	c, err := ParseNodeConfig("load_cell?malformed=1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n := NewNode(c)
	for i := 0; i < 50; i++ {
		f := n.frame(time.Now())
		if len(f.Payload) == 8 {
			t.Fatalf("frame %d has a valid length", i)
		}
		if _, err := packet.DecodeLoadCellTpdo1(f.Payload); !errors.Is(err, domain.ErrMalformedPayload) {
			t.Fatalf("frame %d: want malformed error, got %v", i, err)
		}
	}
	if _, _, malformed := n.Counters(); malformed != 50 {
		t.Fatalf("want 50 malformed, got %d", malformed)
	}
}

func TestChatterAvoidsOwnIdentifiers(t *testing.T) {
	c, err := ParseNodeConfig("chatter?node=sdk")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n := NewNode(c)
	for i := 0; i < 2000; i++ {
		f := n.frame(time.Now())
		if f.ID == 0x1AA || f.ID == 0x22A {
			t.Fatalf("chatter used reserved id 0x%x", f.ID)
		}
		if f.ID > domain.MaxStandardID || len(f.Payload) != 8 {
			t.Fatalf("unexpected chatter frame %s", f)
		}
	}
}

func TestWaveforms(t *testing.T) {
	n := NewNode(NodeConfig{wave: waveRamp, amp: 10, offset: 1, freq: 1})
	if got := n.force(0.25); got != 3.5 {
		t.Fatalf("ramp: want 3.5, got %v", got)
	}
	n.cfg.wave = waveSine
	if got := n.force(0.25); got < 10.999 || got > 11.001 {
		t.Fatalf("sine: want 11, got %v", got)
	}
	n.cfg.wave = waveNoise
	for i := 0; i < 100; i++ {
		if got := n.force(0); got < -9 || got > 11 {
			t.Fatalf("noise out of range: %v", got)
		}
	}
}
