package contracts

import (
	"context"
	"encoding/json"
	"math"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

// DefaultTestInput is the value the comprehensive test runs with (4.0).
var DefaultTestInput = fixedpoint.FromInt64(4)

// Comparison holds both implementations of one function on the same input,
// mirroring the contract's CalculationComparison event.
type Comparison struct {
	Function   mathlib.Function
	Input      *big.Int
	Solidity   *Result
	Rust       *Result
	Difference *big.Int
}

// RelativeError is |solidity - rust| / |rust| in percent, zero when the
// Rust result is zero.
func (c *Comparison) RelativeError() float64 {
	rust := fixedpoint.ToFloat(c.Rust.Raw)
	if rust == 0 {
		return 0
	}
	return fixedpoint.ToFloat(c.Difference) / math.Abs(rust) * 100
}

// Accuracy is 100 minus the relative error, floored at zero.
func (c *Comparison) Accuracy() float64 {
	return math.Max(0, 100-c.RelativeError())
}

func (c *Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FunctionName   mathlib.Function `json:"functionName"`
		Input          string           `json:"input"`
		SolidityResult *Result          `json:"solidityResult"`
		RustResult     *Result          `json:"rustResult"`
		Difference     string           `json:"difference"`
		RelativeError  float64          `json:"relativeError"`
		Accuracy       float64          `json:"accuracy"`
	}{
		FunctionName:   c.Function,
		Input:          fixedpoint.Format(c.Input),
		SolidityResult: c.Solidity,
		RustResult:     c.Rust,
		Difference:     fixedpoint.Format(c.Difference),
		RelativeError:  c.RelativeError(),
		Accuracy:       c.Accuracy(),
	})
}

// Compare runs fn through both implementations, Solidity first.
func Compare(ctx context.Context, calc Calculator, fn mathlib.Function, x *big.Int) (*Comparison, error) {
	sol, err := calc.Calculate(ctx, fn, ImplSolidity, x)
	if err != nil {
		return nil, err
	}
	rust, err := calc.Calculate(ctx, fn, ImplRust, x)
	if err != nil {
		return nil, err
	}

	diff := new(big.Int).Sub(sol.Raw, rust.Raw)
	return &Comparison{
		Function:   fn,
		Input:      x,
		Solidity:   sol,
		Rust:       rust,
		Difference: diff.Abs(diff),
	}, nil
}

// ComprehensiveTest compares every function on x concurrently and returns
// the comparisons in Functions() order.
func ComprehensiveTest(ctx context.Context, calc Calculator, x *big.Int) ([]*Comparison, error) {
	fns := mathlib.Functions()
	out := make([]*Comparison, len(fns))

	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range fns {
		g.Go(func() error {
			cmp, err := Compare(gctx, calc, fn, x)
			if err != nil {
				return err
			}
			out[i] = cmp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
