package mathlib

import (
	"math"
	"math/big"

	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
)

// EvalFloat evaluates f the way the Rust router does: convert to f64, call
// the libm routine, scale back and truncate toward zero. Exp clamps its input
// to [-40, 40] instead of failing.
func EvalFloat(f Function, x *big.Int) (*big.Int, error) {
	if f != FuncExp {
		if err := f.Validate(x); err != nil {
			return nil, err
		}
	}

	xf := fixedpoint.ToFloat(x)
	var r float64
	switch f {
	case FuncSqrt:
		r = math.Sqrt(xf)
	case FuncExp:
		r = math.Exp(math.Max(-40, math.Min(40, xf)))
	case FuncLn:
		r = math.Log(xf)
	case FuncLog2:
		r = math.Log2(xf)
	case FuncLog10:
		r = math.Log10(xf)
	default:
		return nil, f.Validate(x)
	}
	return floatToFixed(r)
}

func floatToFixed(r float64) (*big.Int, error) {
	if math.IsNaN(r) {
		return nil, ErrDomain
	}
	if math.IsInf(r, -1) {
		return new(big.Int).Set(fixedpoint.MinInt256), nil
	}
	if math.IsInf(r, 1) {
		return nil, ErrOverflow
	}
	scaled := new(big.Float).Mul(big.NewFloat(r), new(big.Float).SetInt(fixedpoint.Scale))
	v, _ := scaled.Int(nil)
	return v, nil
}
