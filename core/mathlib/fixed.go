// Package mathlib holds Go versions of the blended contracts' math.
//
// The integer functions follow the contract algorithms on 18-decimal
// fixed-point values: a truncated Taylor series for exp and a 12-term atanh
// series for ln, with integer division truncating toward zero at every step.
// The float functions follow the Rust side, which converts to f64 and calls
// libm.
package mathlib

import (
	"math/big"

	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
)

const (
	expTerms = 20
	lnTerms  = 12
)

var (
	scale  = fixedpoint.Scale
	scale2 = new(big.Int).Mul(fixedpoint.Scale, fixedpoint.Scale)

	// ln(2) and ln(10) as the contracts hard-code them.
	ln2  = big.NewInt(693147180559945309)
	ln10 = big.NewInt(2302585092994045684)

	// Series terms below this stop exp early.
	expCutoff = big.NewInt(1_000_000_000_000)

	expUpper = fixedpoint.FromInt64(40)
	expLower = fixedpoint.FromInt64(-40)
)

// Sqrt returns sqrt(x) for a non-negative fixed-point x, rounded down.
func Sqrt(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, ErrDomain
	}
	return new(big.Int).Sqrt(new(big.Int).Mul(x, scale)), nil
}

// Exp returns e^x. Inputs below -40 underflow to zero; inputs above 40 fail
// with ErrOverflow. Negative inputs are computed as 1/e^|x|.
func Exp(x *big.Int) (*big.Int, error) {
	if x.Cmp(expUpper) > 0 {
		return nil, ErrOverflow
	}
	if x.Cmp(expLower) < 0 {
		return new(big.Int), nil
	}
	if x.Sign() == 0 {
		return new(big.Int).Set(scale), nil
	}

	abs := new(big.Int).Abs(x)
	sum := new(big.Int).Set(scale)
	term := new(big.Int).Set(scale)
	for i := int64(1); i <= expTerms; i++ {
		term.Mul(term, abs)
		term.Quo(term, new(big.Int).Mul(big.NewInt(i), scale))
		sum.Add(sum, term)
		if term.Cmp(expCutoff) < 0 {
			break
		}
	}

	if x.Sign() < 0 {
		return sum.Quo(scale2, sum), nil
	}
	return sum, nil
}

// Ln returns the natural logarithm of a positive fixed-point x.
//
// Values below one are computed as -ln(1/x). Larger values are halved into
// [1, 2) and summed as k*ln(2) + 2*atanh((y-1)/(y+1)).
func Ln(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrDomain
	}
	switch x.Cmp(scale) {
	case 0:
		return new(big.Int), nil
	case -1:
		v, err := Ln(new(big.Int).Quo(scale2, x))
		if err != nil {
			return nil, err
		}
		return v.Neg(v), nil
	}

	y := new(big.Int).Set(x)
	two := new(big.Int).Lsh(scale, 1)
	k := int64(0)
	for y.Cmp(two) >= 0 {
		y.Rsh(y, 1)
		k++
	}

	z := new(big.Int).Sub(y, scale)
	z.Mul(z, scale)
	z.Quo(z, new(big.Int).Add(y, scale))
	z2 := new(big.Int).Mul(z, z)

	sum := new(big.Int)
	power := new(big.Int).Set(z)
	for i := int64(0); i < lnTerms; i++ {
		sum.Add(sum, new(big.Int).Quo(power, big.NewInt(2*i+1)))
		power.Mul(power, z2)
		power.Quo(power, scale2)
	}
	sum.Lsh(sum, 1)

	return sum.Add(sum, new(big.Int).Mul(big.NewInt(k), ln2)), nil
}

// Log2 returns log2(x) = ln(x) / ln(2).
func Log2(x *big.Int) (*big.Int, error) {
	return logBase(x, ln2)
}

// Log10 returns log10(x) = ln(x) / ln(10).
func Log10(x *big.Int) (*big.Int, error) {
	return logBase(x, ln10)
}

func logBase(x, lnBase *big.Int) (*big.Int, error) {
	v, err := Ln(x)
	if err != nil {
		return nil, err
	}
	v.Mul(v, scale)
	return v.Quo(v, lnBase), nil
}
