package common

import (
	"encoding/json"
	"testing"
)

func TestSeverityFromDensity(t *testing.T) {
	cases := []struct {
		density float64
		want    Severity
	}{
		{0, Low},
		{0.5, Low},
		{0.999, Low},
		{1.0, Medium},
		{2.9, Medium},
		{3.0, High},
		{4.9, High},
		{5.0, Critical},
		{66.0 / 12.0, Critical},
	}
	for _, c := range cases {
		if got := SeverityFromDensity(c.density); got != c.want {
			t.Errorf("SeverityFromDensity(%v) = %v, want %v", c.density, got, c.want)
		}
	}
}

func TestSeverityMonotone(t *testing.T) {
	prev := Low
	for d := 0.0; d <= 10.0; d += 0.25 {
		cur := SeverityFromDensity(d)
		if cur < prev {
			t.Fatalf("severity decreased as density increased at %v", d)
		}
		prev = cur
	}
}

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	for i := range raw {
		raw[i] = byte(i)
	}
	a := BytesToAddress(raw)
	if a.ToGeth().Bytes()[0] != raw[0] {
		t.Fatalf("round trip through geth address lost data")
	}
	if AddressFromGeth(a.ToGeth()) != a {
		t.Fatalf("address round trip mismatch")
	}
}

func TestHashHex(t *testing.T) {
	h := BytesToHash([]byte{0x01})
	if h.Hex()[:2] != "0x" {
		t.Fatalf("expected 0x prefix, got %s", h.Hex())
	}
}

func TestAddressMarshalJSON(t *testing.T) {
	a := BytesToAddress([]byte{0xAB})
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got string
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != a.Hex() {
		t.Fatalf("got %s, want %s", got, a.Hex())
	}
}

func TestHazardKindMarshalJSON(t *testing.T) {
	b, err := json.Marshal(WAW)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"WAW"` {
		t.Fatalf("got %s, want \"WAW\"", b)
	}
}
