// Package fixedpoint implements the arbitrary-precision scaled-integer
// arithmetic used throughout the liquidation engine: prices at 6 decimals,
// position amounts at 18 decimals. All parsing is truncating, never
// rounding, and failure returns a nil/false result instead of panicking —
// callers sit on the hot path of webhook processing and must never crash
// on a malformed upstream payload.
package fixedpoint

import (
	"math/big"
	"strings"
)

// Scale exponents used across the engine.
const (
	PriceDecimals  = 6
	AmountDecimals = 18

	// Display precision (truncated, never rounded).
	LiquidationDisplayDecimals = 7
	AmountDisplayDecimals      = 4
)

// ParseDecimal parses a decimal string like "123.456" or "-0.5" into a
// scaled signed integer at the given number of fractional digits. Excess
// fractional digits beyond scale are truncated, not rounded. Returns nil
// on any malformed input.
func ParseDecimal(s string, scale int) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return nil
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return nil
	}

	if len(fracPart) > scale {
		fracPart = fracPart[:scale] // truncate, never round
	}
	for len(fracPart) < scale {
		fracPart += "0"
	}

	combined := intPart + fracPart
	value, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil
	}
	if neg {
		value.Neg(value)
	}
	return value
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatUnits renders a scaled signed integer back to a decimal string.
// Trailing fractional zeros are stripped; zero always renders as "0", never
// "0.0"; a sign prefix is emitted only when negative.
func FormatUnits(value *big.Int, scale int) string {
	if value == nil {
		return "0"
	}
	if value.Sign() == 0 {
		return "0"
	}

	neg := value.Sign() < 0
	abs := new(big.Int).Abs(value)
	digits := abs.String()

	if scale == 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}

	for len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}

	intPart := digits[:len(digits)-scale]
	fracPart := strings.TrimRight(digits[len(digits)-scale:], "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

// TruncateDecimals drops (never rounds) fractional digits of a decimal
// string past maxFrac places. Non-decimal or malformed input is returned
// unchanged.
func TruncateDecimals(s string, maxFrac int) string {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return s
	}
	frac := s[idx+1:]
	if len(frac) <= maxFrac {
		return s
	}
	if maxFrac <= 0 {
		return s[:idx]
	}
	return s[:idx+1+maxFrac]
}

// ToSigned converts an integer, hex string ("0x..."), or decimal string into
// a scaled signed integer. Returns nil on failure. Hex strings are
// interpreted as raw (unscaled) big-endian magnitudes, matching the ABI
// uint256/int256 encodings the event codec hands it.
func ToSigned(v any) *big.Int {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil
		}
		return new(big.Int).Set(x)
	case int64:
		return big.NewInt(x)
	case int:
		return big.NewInt(int64(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, ok := new(big.Int).SetString(s[2:], 16)
			if !ok {
				return nil
			}
			return n
		}
		if strings.ContainsAny(s, ".-") {
			return ParseDecimal(s, 0)
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil
		}
		return n
	default:
		return nil
	}
}

// MulDivPrice computes (priceDelta * signedSize) / 10^PriceDecimals, the
// scale-preserving product used for unrealized-PnL-style arithmetic between
// a 6-decimal price and an 18-decimal signed amount.
func MulDivPrice(priceDelta, signedSize *big.Int) *big.Int {
	if priceDelta == nil || signedSize == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(priceDelta, signedSize)
	divisor := pow10(PriceDecimals)
	return new(big.Int).Quo(product, divisor)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
