package mathlib

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
)

// Function names one of the math entry points exposed by both contracts.
type Function string

const (
	FuncSqrt  Function = "sqrt"
	FuncExp   Function = "exp"
	FuncLn    Function = "ln"
	FuncLog2  Function = "log2"
	FuncLog10 Function = "log10"
)

var (
	ErrDomain          = errors.New("input outside function domain")
	ErrOverflow        = errors.New("result overflows int256")
	ErrUnknownFunction = errors.New("unknown function")
)

// Functions lists every supported function in display order.
func Functions() []Function {
	return []Function{FuncSqrt, FuncExp, FuncLn, FuncLog2, FuncLog10}
}

// ParseFunction accepts a function name case-insensitively.
func ParseFunction(s string) (Function, error) {
	f := Function(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Functions() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFunction, s)
}

// SignedInput reports whether the ABI input type is int256 rather than uint256.
func (f Function) SignedInput() bool {
	return f == FuncExp
}

// ParseInput parses a decimal string with the range of f's ABI input type:
// int256 for exp, uint256 for the others. Negative values for the unsigned
// functions come back as int256 so Validate reports the domain error.
func (f Function) ParseInput(s string) (*big.Int, error) {
	if f.SignedInput() {
		return fixedpoint.Parse(s)
	}
	v, err := fixedpoint.ParseUnsigned(s)
	if errors.Is(err, fixedpoint.ErrNegative) {
		return fixedpoint.Parse(s)
	}
	return v, err
}

// SignedOutput reports whether the ABI output type is int256.
func (f Function) SignedOutput() bool {
	return f != FuncSqrt
}

// InputError is returned when an input is rejected before evaluation. Its
// message is meant to be shown to the user as is.
type InputError struct {
	Function Function
	Message  string
	Err      error
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return e.Err }

// Validate checks x against the domain of f.
func (f Function) Validate(x *big.Int) error {
	if x == nil {
		return &InputError{Function: f, Message: "Please enter a valid number", Err: ErrDomain}
	}
	switch f {
	case FuncSqrt:
		if x.Sign() < 0 {
			return &InputError{Function: f, Message: "Square root requires a non-negative number", Err: ErrDomain}
		}
	case FuncLn, FuncLog2, FuncLog10:
		if x.Sign() <= 0 {
			return &InputError{Function: f, Message: "Logarithmic functions require a positive number", Err: ErrDomain}
		}
	case FuncExp:
		if x.Cmp(expUpper) > 0 {
			return &InputError{Function: f, Message: "Exponent too large: e^x overflows above x = 40", Err: ErrOverflow}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFunction, string(f))
	}
	return nil
}

// Eval evaluates f on a scaled input using the integer contract algorithms.
func Eval(f Function, x *big.Int) (*big.Int, error) {
	if err := f.Validate(x); err != nil {
		return nil, err
	}
	switch f {
	case FuncSqrt:
		return Sqrt(x)
	case FuncExp:
		return Exp(x)
	case FuncLn:
		return Ln(x)
	case FuncLog2:
		return Log2(x)
	default:
		return Log10(x)
	}
}
