package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

// Implementation selects which side of the blended contract runs a function.
type Implementation string

const (
	ImplSolidity Implementation = "solidity"
	ImplRust     Implementation = "rust"
)

var (
	ErrUnknownImplementation = errors.New("unknown implementation")
	ErrNotDeployed           = errors.New("contract address not configured")
)

// Implementations lists both sides in display order.
func Implementations() []Implementation {
	return []Implementation{ImplSolidity, ImplRust}
}

func ParseImplementation(s string) (Implementation, error) {
	switch Implementation(strings.ToLower(strings.TrimSpace(s))) {
	case ImplSolidity, "":
		return ImplSolidity, nil
	case ImplRust:
		return ImplRust, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownImplementation, s)
}

// Result is one evaluated function call.
type Result struct {
	Function       mathlib.Function
	Implementation Implementation
	Input          *big.Int
	Raw            *big.Int
	Formatted      string
	Elapsed        time.Duration
	Mock           bool
}

func newResult(fn mathlib.Function, impl Implementation, x, raw *big.Int, elapsed time.Duration) *Result {
	return &Result{
		Function:       fn,
		Implementation: impl,
		Input:          x,
		Raw:            raw,
		Formatted:      formatOutput(raw),
		Elapsed:        elapsed,
	}
}

func formatOutput(v *big.Int) string {
	switch {
	case fixedpoint.IsNegInfinity(v):
		return "-Infinity"
	case fixedpoint.IsPosInfinity(v):
		return "Infinity"
	}
	return fixedpoint.Format(v)
}

// MarshalJSON renders the scaled integers as decimal strings so browsers do
// not lose precision.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Function       mathlib.Function `json:"function"`
		Implementation Implementation   `json:"implementation"`
		Input          string           `json:"input"`
		Raw            string           `json:"raw"`
		Output         string           `json:"output"`
		ElapsedMs      float64          `json:"elapsed_ms"`
		Mock           bool             `json:"mock"`
	}{
		Function:       r.Function,
		Implementation: r.Implementation,
		Input:          fixedpoint.Format(r.Input),
		Raw:            r.Raw.String(),
		Output:         r.Formatted,
		ElapsedMs:      float64(r.Elapsed.Microseconds()) / 1000,
		Mock:           r.Mock,
	})
}

// Calculator evaluates a math function with one of the two implementations.
type Calculator interface {
	Calculate(ctx context.Context, fn mathlib.Function, impl Implementation, x *big.Int) (*Result, error)
}

// Caller performs a read-only contract call. *rpcclient.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// ContractCalculator evaluates functions through eth_call on the deployed
// contracts.
type ContractCalculator struct {
	caller  Caller
	blended common.Address
	router  common.Address
	timeout time.Duration
	logger  *logrus.Logger
}

type CalcOption func(*ContractCalculator)

// WithRouter sends Rust calls straight to the router instead of through the
// Solidity wrapper.
func WithRouter(addr common.Address) CalcOption {
	return func(c *ContractCalculator) { c.router = addr }
}

func WithCallTimeout(d time.Duration) CalcOption {
	return func(c *ContractCalculator) { c.timeout = d }
}

func WithCalcLogger(logger *logrus.Logger) CalcOption {
	return func(c *ContractCalculator) { c.logger = logger }
}

// NewContractCalculator creates a calculator bound to the blended contract.
func NewContractCalculator(caller Caller, blended common.Address, opts ...CalcOption) (*ContractCalculator, error) {
	if blended == (common.Address{}) {
		return nil, fmt.Errorf("solidity %w", ErrNotDeployed)
	}
	if _, _, err := parsedABIs(); err != nil {
		return nil, err
	}
	c := &ContractCalculator{
		caller:  caller,
		blended: blended,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Calculate validates x and calls the matching contract method.
func (c *ContractCalculator) Calculate(ctx context.Context, fn mathlib.Function, impl Implementation, x *big.Int) (*Result, error) {
	if err := fn.Validate(x); err != nil {
		return nil, err
	}

	blended, router, _ := parsedABIs()
	parsed, target, method := blended, c.blended, MethodName(fn, impl)
	if impl == ImplRust && c.router != (common.Address{}) {
		parsed, target, method = router, c.router, string(fn)
	}

	data, err := packCall(parsed, method, x)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.caller.Call(ctx, target, data)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": fn,
			"impl":     impl,
			"target":   target.Hex(),
		}).WithError(err).Warn("Contract call failed")
		return nil, err
	}

	raw, err := unpackInt(parsed, method, out)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"function": fn,
		"impl":     impl,
		"elapsed":  elapsed,
	}).Debug("Contract call completed")
	return newResult(fn, impl, x, raw, elapsed), nil
}

// RustContract reads the router address the Solidity contract was built with.
func (c *ContractCalculator) RustContract(ctx context.Context) (common.Address, error) {
	blended, _, _ := parsedABIs()
	data, err := blended.Pack("rustContract")
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack rustContract: %w", err)
	}
	out, err := c.caller.Call(ctx, c.blended, data)
	if err != nil {
		return common.Address{}, err
	}
	return unpackAddress(blended, "rustContract", out)
}

// ToFixed scales a whole number on chain.
func (c *ContractCalculator) ToFixed(ctx context.Context, x *big.Int) (*big.Int, error) {
	return c.callUnary(ctx, "toFixed", x)
}

// FromFixed drops the fractional part of a scaled value on chain.
func (c *ContractCalculator) FromFixed(ctx context.Context, x *big.Int) (*big.Int, error) {
	return c.callUnary(ctx, "fromFixed", x)
}

func (c *ContractCalculator) callUnary(ctx context.Context, method string, x *big.Int) (*big.Int, error) {
	blended, _, _ := parsedABIs()
	data, err := packCall(blended, method, x)
	if err != nil {
		return nil, err
	}
	out, err := c.caller.Call(ctx, c.blended, data)
	if err != nil {
		return nil, err
	}
	return unpackInt(blended, method, out)
}
