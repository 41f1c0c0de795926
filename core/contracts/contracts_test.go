package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
	"github.com/Shivam-Patel-G/blended-math/core/rpcclient"
)

var (
	blendedAddr = common.HexToAddress("0xAFc63F12b732701526f48E8256Ad35c888336E54")
	routerAddr  = common.HexToAddress("0x87B99c706E17211F313E21F1ED98782e19E91fB2")
)

// chainCaller answers eth_calls by decoding the selector against the ABIs
// and evaluating with mathlib, like the deployed pair would.
type chainCaller struct {
	mu      sync.Mutex
	targets []common.Address
	err     error
}

func (c *chainCaller) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	c.targets = append(c.targets, to)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}

	parsed, err := Blended()
	if err != nil {
		return nil, err
	}
	if to == routerAddr {
		if parsed, err = Router(); err != nil {
			return nil, err
		}
	}

	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	if method.Name == "rustContract" {
		return method.Outputs.Pack(routerAddr)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	x := args[0].(*big.Int)

	var out *big.Int
	switch method.Name {
	case "toFixed":
		out = new(big.Int).Mul(x, fixedpoint.Scale)
	case "fromFixed":
		out = new(big.Int).Quo(x, fixedpoint.Scale)
	default:
		name, rust := functionOf(method.Name, to == routerAddr)
		if rust {
			out, err = mathlib.EvalFloat(name, x)
		} else {
			out, err = mathlib.Eval(name, x)
		}
		if err != nil {
			return nil, errors.New("execution reverted: " + err.Error())
		}
	}
	return method.Outputs.Pack(out)
}

func functionOf(method string, router bool) (mathlib.Function, bool) {
	if router {
		return mathlib.Function(method), true
	}
	for _, fn := range mathlib.Functions() {
		switch method {
		case string(fn) + "Rust":
			return fn, true
		case string(fn) + "Solidity":
			return fn, false
		}
	}
	return "", false
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCalc(t *testing.T, caller Caller, opts ...CalcOption) *ContractCalculator {
	t.Helper()
	opts = append(opts, WithCalcLogger(quietLogger()))
	calc, err := NewContractCalculator(caller, blendedAddr, opts...)
	require.NoError(t, err)
	return calc
}

func TestABIsParse(t *testing.T) {
	blended, err := Blended()
	require.NoError(t, err)
	router, err := Router()
	require.NoError(t, err)

	for _, fn := range mathlib.Functions() {
		for _, impl := range Implementations() {
			_, ok := blended.Methods[MethodName(fn, impl)]
			assert.True(t, ok, MethodName(fn, impl))
		}
		_, ok := router.Methods[string(fn)]
		assert.True(t, ok, fn)
	}
	assert.Contains(t, blended.Events, "CalculationComparison")
	assert.Equal(t, "lnRust", MethodName(mathlib.FuncLn, ImplRust))
}

func TestParseImplementation(t *testing.T) {
	impl, err := ParseImplementation("Rust")
	require.NoError(t, err)
	assert.Equal(t, ImplRust, impl)

	impl, err = ParseImplementation("")
	require.NoError(t, err)
	assert.Equal(t, ImplSolidity, impl)

	_, err = ParseImplementation("python")
	assert.ErrorIs(t, err, ErrUnknownImplementation)
}

func TestContractCalculator(t *testing.T) {
	caller := &chainCaller{}
	calc := newCalc(t, caller)
	ctx := context.Background()

	t.Run("sqrt through solidity", func(t *testing.T) {
		r, err := calc.Calculate(ctx, mathlib.FuncSqrt, ImplSolidity, fixedpoint.FromInt64(4))
		require.NoError(t, err)
		assert.Equal(t, "2", r.Formatted)
		assert.False(t, r.Mock)
	})

	t.Run("negative ln result", func(t *testing.T) {
		x, _ := fixedpoint.Parse("0.5")
		r, err := calc.Calculate(ctx, mathlib.FuncLn, ImplSolidity, x)
		require.NoError(t, err)
		assert.Equal(t, -1, r.Raw.Sign())
	})

	t.Run("signed exp input", func(t *testing.T) {
		r, err := calc.Calculate(ctx, mathlib.FuncExp, ImplRust, fixedpoint.FromInt64(-1))
		require.NoError(t, err)
		assert.Equal(t, "0.36787944117144", fixedpoint.FormatPrecision(r.Raw, 14))
	})

	t.Run("rejects invalid input before calling", func(t *testing.T) {
		before := len(caller.targets)
		_, err := calc.Calculate(ctx, mathlib.FuncLn, ImplSolidity, big.NewInt(0))
		var inputErr *mathlib.InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, "Logarithmic functions require a positive number", inputErr.Message)
		assert.Len(t, caller.targets, before)
	})
}

func TestContractCalculatorRouter(t *testing.T) {
	caller := &chainCaller{}
	calc := newCalc(t, caller, WithRouter(routerAddr))

	r, err := calc.Calculate(context.Background(), mathlib.FuncLog10, ImplRust, fixedpoint.FromInt64(1000))
	require.NoError(t, err)
	assert.Equal(t, "3", fixedpoint.FormatPrecision(r.Raw, 0))
	assert.Equal(t, []common.Address{routerAddr}, caller.targets)
}

func TestContractHelpers(t *testing.T) {
	calc := newCalc(t, &chainCaller{})
	ctx := context.Background()

	addr, err := calc.RustContract(ctx)
	require.NoError(t, err)
	assert.Equal(t, routerAddr, addr)

	fixed, err := calc.ToFixed(ctx, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.FromInt64(7).String(), fixed.String())

	whole, err := calc.FromFixed(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, int64(7), whole.Int64())
}

func TestNewContractCalculatorRequiresAddress(t *testing.T) {
	_, err := NewContractCalculator(&chainCaller{}, common.Address{})
	assert.ErrorIs(t, err, ErrNotDeployed)
}

func TestFallbackCalculator(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back on connectivity errors", func(t *testing.T) {
		down := newCalc(t, &chainCaller{err: &rpcclient.CallError{Kind: rpcclient.KindTimeout}})
		calc := NewFallbackCalculator(down, NewLocalCalculator(), quietLogger())

		r, err := calc.Calculate(ctx, mathlib.FuncSqrt, ImplSolidity, fixedpoint.FromInt64(9))
		require.NoError(t, err)
		assert.True(t, r.Mock)
		assert.Equal(t, "3", r.Formatted)
	})

	t.Run("keeps reverts", func(t *testing.T) {
		reverting := newCalc(t, &chainCaller{err: &rpcclient.CallError{Kind: rpcclient.KindRevert, Reason: "nope"}})
		calc := NewFallbackCalculator(reverting, NewLocalCalculator(), quietLogger())

		_, err := calc.Calculate(ctx, mathlib.FuncSqrt, ImplSolidity, fixedpoint.FromInt64(9))
		assert.True(t, rpcclient.IsKind(err, rpcclient.KindRevert))
	})

	t.Run("no primary", func(t *testing.T) {
		calc := NewFallbackCalculator(nil, NewLocalCalculator(), quietLogger())
		r, err := calc.Calculate(ctx, mathlib.FuncExp, ImplRust, big.NewInt(0))
		require.NoError(t, err)
		assert.Equal(t, "1", r.Formatted)
		assert.True(t, r.Mock)
	})
}

func TestCompare(t *testing.T) {
	calc := newCalc(t, &chainCaller{})

	cmp, err := Compare(context.Background(), calc, mathlib.FuncSqrt, fixedpoint.FromInt64(2))
	require.NoError(t, err)
	assert.Equal(t, mathlib.FuncSqrt, cmp.Function)
	assert.Equal(t, ImplSolidity, cmp.Solidity.Implementation)
	assert.Equal(t, ImplRust, cmp.Rust.Implementation)

	want := new(big.Int).Sub(cmp.Solidity.Raw, cmp.Rust.Raw)
	assert.Equal(t, want.Abs(want).String(), cmp.Difference.String())
	// f64 sqrt agrees with the integer version to well below 1e-12.
	assert.Less(t, cmp.RelativeError(), 1e-10)
	assert.Greater(t, cmp.Accuracy(), 99.99)
}

func TestComprehensiveTest(t *testing.T) {
	results, err := ComprehensiveTest(context.Background(), NewLocalCalculator(), DefaultTestInput)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, fn := range mathlib.Functions() {
		assert.Equal(t, fn, results[i].Function)
		assert.Less(t, results[i].RelativeError(), 1e-6, fn)
	}
}

func TestComprehensiveTestPropagatesErrors(t *testing.T) {
	_, err := ComprehensiveTest(context.Background(), NewLocalCalculator(), fixedpoint.FromInt64(-1))
	var inputErr *mathlib.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestComparisonJSON(t *testing.T) {
	cmp, err := Compare(context.Background(), NewLocalCalculator(), mathlib.FuncLog2, fixedpoint.FromInt64(8))
	require.NoError(t, err)

	data, err := json.Marshal(cmp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "log2", decoded["functionName"])
	assert.Equal(t, "8", decoded["input"])
	sol := decoded["solidityResult"].(map[string]any)
	assert.Equal(t, "3", sol["output"])
	assert.Equal(t, "solidity", sol["implementation"])
}
