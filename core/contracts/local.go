package contracts

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
	"github.com/Shivam-Patel-G/blended-math/core/rpcclient"
)

// LocalCalculator evaluates functions in process. The Solidity side uses the
// integer contract algorithms, the Rust side the float emulation of the router.
type LocalCalculator struct{}

func NewLocalCalculator() *LocalCalculator {
	return &LocalCalculator{}
}

func (l *LocalCalculator) Calculate(ctx context.Context, fn mathlib.Function, impl Implementation, x *big.Int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eval := mathlib.Eval
	if impl == ImplRust {
		eval = mathlib.EvalFloat
	}

	start := time.Now()
	raw, err := eval(fn, x)
	if err != nil {
		return nil, err
	}
	r := newResult(fn, impl, x, raw, time.Since(start))
	r.Mock = true
	return r, nil
}

// FallbackCalculator prefers the contracts and drops to the local
// calculator when the network or the contract cannot be reached. Reverts and
// rejected inputs are returned as is.
type FallbackCalculator struct {
	primary  Calculator
	fallback Calculator
	logger   *logrus.Logger
}

func NewFallbackCalculator(primary, fallback Calculator, logger *logrus.Logger) *FallbackCalculator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FallbackCalculator{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackCalculator) Calculate(ctx context.Context, fn mathlib.Function, impl Implementation, x *big.Int) (*Result, error) {
	if f.primary != nil {
		r, err := f.primary.Calculate(ctx, fn, impl, x)
		if err == nil || !shouldFallback(err) {
			return r, err
		}
		f.logger.WithFields(logrus.Fields{
			"function": fn,
			"impl":     impl,
		}).WithError(err).Warn("Contract unavailable, using local calculation")
	}

	r, err := f.fallback.Calculate(ctx, fn, impl, x)
	if err != nil {
		return nil, err
	}
	r.Mock = true
	return r, nil
}

func shouldFallback(err error) bool {
	var inputErr *mathlib.InputError
	if errors.As(err, &inputErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !rpcclient.IsKind(err, rpcclient.KindRevert)
}
