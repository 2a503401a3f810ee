package domain_test

import (
	"testing"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
)

func TestIdentifierCobID(t *testing.T) {
	id := domain.NewIdentifier(0x180, domain.NodeSDK)
	if id.CobID() != 0x1AA {
		t.Fatalf("unexpected cob id: 0x%x", id.CobID())
	}
	if id.String() != "0x180+0x2a" {
		t.Fatalf("unexpected string: %s", id.String())
	}
	if err := id.Validate(); err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if err := domain.NewIdentifier(0x7F0, 0x20).Validate(); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestParseNode(t *testing.T) {
	cases := map[string]uint32{
		"sdk":   0x2A,
		"SDK":   0x2A,
		"brain": 0x1F,
		"0x2A":  0x2A,
		"42":    42,
		" 0xe ": 0x0E,
	}
	for in, want := range cases {
		got, err := domain.ParseNode(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got 0x%x want 0x%x", in, got, want)
		}
	}

	for _, in := range []string{"", "nope", "-1", "0x800"} {
		if _, err := domain.ParseNode(in); err == nil {
			t.Fatalf("parse %q: expected error", in)
		}
	}
}

func TestNodeName(t *testing.T) {
	if domain.NodeName(0x2A) != "sdk" {
		t.Fatalf("unexpected name: %s", domain.NodeName(0x2A))
	}
	if domain.NodeName(0x33) != "0x33" {
		t.Fatalf("unexpected name: %s", domain.NodeName(0x33))
	}
}

func TestStreamState(t *testing.T) {
	streamable := map[domain.StreamState]bool{
		domain.StateUnknown:     false,
		domain.StateStopped:     false,
		domain.StateRunning:     true,
		domain.StateIdle:        true,
		domain.StateUnavailable: false,
		domain.StateError:       false,
	}
	for st, want := range streamable {
		if st.Streamable() != want {
			t.Fatalf("%s: streamable=%v", st, st.Streamable())
		}
		if st != domain.StateUnknown && domain.ParseStreamState(st.String()) != st {
			t.Fatalf("%s: parse mismatch", st)
		}
	}
	if domain.ParseStreamState("bogus") != domain.StateUnknown {
		t.Fatalf("expected unknown")
	}
}
