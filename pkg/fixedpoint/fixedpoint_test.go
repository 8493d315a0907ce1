package fixedpoint

import (
	"math/big"
	"testing"
)

func TestParseAndFormatRoundTrip(t *testing.T) {
	cases := []struct {
		in    string
		scale int
		want  string
	}{
		{"100", 6, "100"},
		{"100.5", 6, "100.5"},
		{"0", 18, "0"},
		{"-0.000001", 6, "-0.000001"},
		{"1.100000", 6, "1.1"},
	}
	for _, c := range cases {
		v := ParseDecimal(c.in, c.scale)
		if v == nil {
			t.Fatalf("ParseDecimal(%q, %d) = nil", c.in, c.scale)
		}
		got := FormatUnits(v, c.scale)
		if got != c.want {
			t.Errorf("round trip %q scale=%d: got %q want %q", c.in, c.scale, got, c.want)
		}
	}
}

func TestFormatUnitsZero(t *testing.T) {
	if got := FormatUnits(big.NewInt(0), 6); got != "0" {
		t.Errorf("zero formatted as %q, want %q", got, "0")
	}
	if got := FormatUnits(nil, 6); got != "0" {
		t.Errorf("nil formatted as %q, want %q", got, "0")
	}
}

func TestParseDecimalTruncatesExcessFraction(t *testing.T) {
	v := ParseDecimal("1.23456789", 4)
	if v == nil {
		t.Fatal("expected non-nil")
	}
	if got := FormatUnits(v, 4); got != "1.2345" {
		t.Errorf("got %q, want %q (truncation, not rounding)", got, "1.2345")
	}
}

func TestParseDecimalInvalid(t *testing.T) {
	for _, s := range []string{"", "abc", "1.2.3", "-", "1.2a"} {
		if v := ParseDecimal(s, 6); v != nil {
			t.Errorf("ParseDecimal(%q) = %v, want nil", s, v)
		}
	}
}

func TestTruncateDecimalsNeverRounds(t *testing.T) {
	if got := TruncateDecimals("1.987654321", 4); got != "1.9876" {
		t.Errorf("got %q", got)
	}
	if got := TruncateDecimals("42", 4); got != "42" {
		t.Errorf("integer passthrough got %q", got)
	}
	if got := TruncateDecimals("1.5", 0); got != "1" {
		t.Errorf("got %q", got)
	}
}

func TestToSignedVariants(t *testing.T) {
	if v := ToSigned("0x1a"); v == nil || v.Int64() != 26 {
		t.Errorf("hex parse failed: %v", v)
	}
	if v := ToSigned(int64(42)); v == nil || v.Int64() != 42 {
		t.Errorf("int64 parse failed: %v", v)
	}
	if v := ToSigned("not-a-number"); v != nil {
		t.Errorf("expected nil, got %v", v)
	}
}

func TestMulDivPrice(t *testing.T) {
	// priceDelta=10e6 (i.e. $10), size=2e18: (priceDelta*size)/1e6 = 20e18,
	// i.e. 20.0 at the size's own 18-decimal scale.
	priceDelta := big.NewInt(10_000_000)             // 10.000000
	size := new(big.Int).SetInt64(2_000000000000000000) // 2.0 in 18-dec
	got := MulDivPrice(priceDelta, size)
	want := new(big.Int).Mul(priceDelta, size)
	want.Quo(want, big.NewInt(1_000_000))
	if got.Cmp(want) != 0 {
		t.Errorf("got %s want %s", got, want)
	}
}
