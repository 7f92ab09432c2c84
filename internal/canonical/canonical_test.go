package canonical_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crediflow/crediflow/internal/canonical"
)

func TestParse_keyOrderIndependence(t *testing.T) {
	a := []byte(`{"b":2,"a":1,"c":{"y":true,"x":null}}`)
	b := []byte(`{"c":{"x":null,"y":true},"a":1,"b":2}`)

	fa, err := canonical.Parse(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := canonical.Parse(b)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(fa.Encode(), fb.Encode()) {
		t.Errorf("canonical bytes differ:\n  %s\n  %s", fa.Encode(), fb.Encode())
	}
}

func TestEncode_sortsKeysRecursively(t *testing.T) {
	f, err := canonical.Parse([]byte(`{"z":{"b":1,"a":2},"a":[{"d":4,"c":3}]}`))
	if err != nil {
		t.Fatal(err)
	}

	want := `{"a":[{"c":3,"d":4}],"z":{"a":2,"b":1}}`
	if got := string(f.Encode()); got != want {
		t.Errorf("Encode() = %s, want %s", got, want)
	}
}

func TestEncode_preservesSequenceOrder(t *testing.T) {
	f, err := canonical.Parse([]byte(`[3,1,2]`))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(f.Encode()); got != `[3,1,2]` {
		t.Errorf("Encode() = %s, sequence order must survive", got)
	}
}

func TestEncode_preservesNumberText(t *testing.T) {
	// "1.50" and "1.5" are distinct textual values; canonicalization must
	// never reformat them through float64.
	f, err := canonical.Parse([]byte(`{"amount":"1.50","n":0.001}`))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"amount":"1.50","n":0.001}`
	if got := string(f.Encode()); got != want {
		t.Errorf("Encode() = %s, want %s", got, want)
	}
}

func TestCanonicalize_timeIsOpaqueScalar(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f, err := canonical.Canonicalize(map[string]any{"created_at": ts})
	if err != nil {
		t.Fatal(err)
	}

	got := string(f.Encode())
	if !strings.Contains(got, `"created_at":"2026-03-01T12:00:00Z"`) {
		t.Errorf("time not rendered as opaque scalar: %s", got)
	}
	if strings.Contains(got, "wall") || strings.Contains(got, "ext") {
		t.Errorf("time expanded into fields: %s", got)
	}
}

func TestCanonicalize_unsupportedType(t *testing.T) {
	_, err := canonical.Canonicalize(map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Fatal("expected error for channel value")
	}
	var serr *canonical.SerializationError
	if !errors.As(err, &serr) {
		t.Errorf("error type = %T, want *SerializationError", err)
	}
}

func TestCanonicalize_circularStructure(t *testing.T) {
	type node struct {
		Next *node `json:"next"`
	}
	n := &node{}
	n.Next = n

	_, err := canonical.Canonicalize(n)
	var serr *canonical.SerializationError
	if !errors.As(err, &serr) {
		t.Errorf("circular input: error = %v, want *SerializationError", err)
	}
}

func TestParse_trailingData(t *testing.T) {
	if _, err := canonical.Parse([]byte(`{"a":1}{"b":2}`)); err == nil {
		t.Error("expected error for trailing data")
	}
}

func TestIdentify_deterministic(t *testing.T) {
	f, err := canonical.Parse([]byte(`{"amount":"1.5","recipient":"addr_1"}`))
	if err != nil {
		t.Fatal(err)
	}

	id1 := canonical.Identify(f)
	id2 := canonical.Identify(f)
	if id1 != id2 {
		t.Errorf("Identify not stable: %s vs %s", id1, id2)
	}
	if !canonical.IsIdentifier(id1) {
		t.Errorf("Identify produced malformed identifier %q", id1)
	}
}

func TestIdentify_sensitiveToAnyField(t *testing.T) {
	base := map[string]any{"amount": "1.5", "recipient": "addr_1", "memo": "x"}

	fBase, err := canonical.Canonicalize(base)
	if err != nil {
		t.Fatal(err)
	}
	baseID := canonical.Identify(fBase)

	for k, v := range map[string]any{"amount": "1.6", "recipient": "addr_2", "memo": "y"} {
		changed := map[string]any{"amount": base["amount"], "recipient": base["recipient"], "memo": base["memo"]}
		changed[k] = v
		f, err := canonical.Canonicalize(changed)
		if err != nil {
			t.Fatal(err)
		}
		if canonical.Identify(f) == baseID {
			t.Errorf("changing %q did not change the identifier", k)
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	valid := strings.Repeat("a0", 32)
	cases := []struct {
		in   string
		want bool
	}{
		{valid, true},
		{strings.Repeat("0", 64), true},
		{strings.ToUpper(valid), false}, // uppercase hex is not canonical
		{valid[:63], false},
		{valid + "0", false},
		{strings.Repeat("g", 64), false},
		{"", false},
	}
	for _, tc := range cases {
		if got := canonical.IsIdentifier(tc.in); got != tc.want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
