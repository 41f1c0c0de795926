// Package fixedpoint converts between decimal strings and the 18-decimal
// scaled integers used by the math contracts.
//
// A fixed-point value is a *big.Int holding value * 10^18. The sign lives in
// the integer itself, so int256 results such as exp and ln round-trip
// without a separate flag.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/govalues/decimal"
)

// Decimals is the number of fractional digits carried by a fixed-point value.
const Decimals = 18

// MaxSafeInteger is the largest integer a float64 input may carry before it
// stops being exact (2^53 - 1).
const MaxSafeInteger = 1<<53 - 1

var (
	// Scale is 10^18.
	Scale = pow10(Decimals)

	MaxInt256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	MinInt256  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

var (
	ErrInvalidNumber = errors.New("invalid decimal number")
	ErrNotFinite     = errors.New("value is not a finite number")
	ErrTooPrecise    = errors.New("too many fractional digits")
	ErrOutOfRange    = errors.New("value out of range")
	ErrNegative      = errors.New("value must not be negative")
)

// Parse converts a decimal string such as "1.5" or "-0.25" into a scaled
// integer. The result must fit in int256.
func Parse(s string) (*big.Int, error) {
	v, err := ParseUnits(s, Decimals)
	if err != nil {
		return nil, err
	}
	if v.Cmp(MinInt256) < 0 || v.Cmp(MaxInt256) > 0 {
		return nil, fmt.Errorf("%w: %q does not fit int256", ErrOutOfRange, s)
	}
	return v, nil
}

// ParseUnsigned is Parse for uint256 inputs (sqrt, ln, log2, log10).
func ParseUnsigned(s string) (*big.Int, error) {
	v, err := ParseUnits(s, Decimals)
	if err != nil {
		return nil, err
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNegative, s)
	}
	if v.Cmp(MaxUint256) > 0 {
		return nil, fmt.Errorf("%w: %q does not fit uint256", ErrOutOfRange, s)
	}
	return v, nil
}

// ParseUnits scales a decimal string by 10^decimals. No range check is
// applied beyond the digit count.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	str := strings.TrimSpace(s)
	if isNonFinite(str) {
		return nil, fmt.Errorf("%w: %q", ErrNotFinite, s)
	}

	neg := strings.HasPrefix(str, "-")
	if neg {
		str = str[1:]
	}

	whole, frac, _ := strings.Cut(str, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d", ErrTooPrecise, s, decimals)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// Format renders a scaled integer as a decimal string with trailing
// fractional zeros removed. A nil value formats as "0".
func Format(v *big.Int) string {
	return FormatUnits(v, Decimals)
}

// FormatUnits is Format for an arbitrary number of decimals, e.g. a token
// balance.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	if decimals <= 0 {
		return v.String()
	}

	abs := new(big.Int).Abs(v)
	q, r := new(big.Int).QuoRem(abs, pow10(decimals), new(big.Int))

	out := q.String()
	if r.Sign() != 0 {
		frac := r.String()
		frac = strings.Repeat("0", decimals-len(frac)) + frac
		out += "." + strings.TrimRight(frac, "0")
	}
	if v.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// FormatPrecision renders v with exactly places fractional digits, rounding
// half away from zero.
func FormatPrecision(v *big.Int, places int) string {
	if v == nil {
		v = new(big.Int)
	}
	if places < 0 {
		places = 0
	}
	if places > Decimals {
		places = Decimals
	}

	abs := new(big.Int).Abs(v)
	unit := pow10(Decimals - places)
	half := new(big.Int).Rsh(unit, 1)
	q := new(big.Int).Quo(abs.Add(abs, half), unit)

	intPart, fracPart := new(big.Int).QuoRem(q, pow10(places), new(big.Int))
	out := intPart.String()
	if places > 0 {
		frac := fracPart.String()
		out += "." + strings.Repeat("0", places-len(frac)) + frac
	}
	if v.Sign() < 0 && q.Sign() != 0 {
		out = "-" + out
	}
	return out
}

// Display is FormatPrecision that also renders the int256 sentinels the
// contracts return for ln(0) and exp overflow.
func Display(v *big.Int, places int) string {
	switch {
	case IsNegInfinity(v):
		return "-Infinity"
	case IsPosInfinity(v):
		return "Infinity"
	}
	return FormatPrecision(v, places)
}

// IsNegInfinity reports whether v is the int256 minimum, which the
// logarithm functions return for an input of zero.
func IsNegInfinity(v *big.Int) bool {
	return v != nil && v.Cmp(MinInt256) == 0
}

// IsPosInfinity reports whether v is the int256 maximum, which exp returns
// on overflow.
func IsPosInfinity(v *big.Int) bool {
	return v != nil && v.Cmp(MaxInt256) == 0
}

// FromFloat converts a float64 form input into a scaled integer through its
// shortest decimal representation, so 0.1 becomes exactly 10^17.
func FromFloat(f float64) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrNotFinite, f)
	}
	if math.Abs(f) > MaxSafeInteger {
		return nil, fmt.Errorf("%w: %v exceeds the safe integer range", ErrOutOfRange, f)
	}

	d, err := decimal.NewFromFloat64(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	if d.Scale() > Decimals {
		d = d.Round(Decimals)
	}
	return Parse(d.String())
}

// FromInt64 scales a whole number, the Go side of the contract's toFixed.
func FromInt64(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale)
}

// ToFloat converts a scaled integer to float64. The conversion is lossy and
// meant for charts and tolerances only.
func ToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(Scale)).Float64()
	return f
}

func isNonFinite(s string) bool {
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return true
	}
	return false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
