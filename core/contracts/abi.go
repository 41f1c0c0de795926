package contracts

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

// BlendedABI is the interface of the Solidity contract that wraps the Rust
// router and carries its own PRB-style implementations.
const BlendedABI = `[
	{"inputs":[{"name":"_rustContract","type":"address"}],"stateMutability":"nonpayable","type":"constructor"},
	{"inputs":[],"name":"rustContract","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"sqrtSolidity","outputs":[{"name":"","type":"uint256"}],"stateMutability":"pure","type":"function"},
	{"inputs":[{"name":"x","type":"int256"}],"name":"expSolidity","outputs":[{"name":"","type":"int256"}],"stateMutability":"pure","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"lnSolidity","outputs":[{"name":"","type":"int256"}],"stateMutability":"pure","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"log2Solidity","outputs":[{"name":"","type":"int256"}],"stateMutability":"pure","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"log10Solidity","outputs":[{"name":"","type":"int256"}],"stateMutability":"pure","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"sqrtRust","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"int256"}],"name":"expRust","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"lnRust","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"log2Rust","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"log10Rust","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"sqrtComparison","outputs":[{"name":"solidityResult","type":"uint256"},{"name":"rustResult","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"performComprehensiveTest","outputs":[{"name":"sqrtDiff","type":"uint256"},{"name":"expDiff","type":"uint256"},{"name":"lnDiff","type":"uint256"},{"name":"log2Diff","type":"uint256"},{"name":"log10Diff","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"toFixed","outputs":[{"name":"","type":"uint256"}],"stateMutability":"pure","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"fromFixed","outputs":[{"name":"","type":"uint256"}],"stateMutability":"pure","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"functionName","type":"string"},{"indexed":false,"name":"input","type":"uint256"},{"indexed":false,"name":"solidityResult","type":"uint256"},{"indexed":false,"name":"rustResult","type":"uint256"},{"indexed":false,"name":"difference","type":"uint256"}],"name":"CalculationComparison","type":"event"}
]`

// RouterABI is the interface exported by the Rust/WASM math router.
const RouterABI = `[
	{"inputs":[{"name":"x","type":"uint256"}],"name":"sqrt","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"int256"}],"name":"exp","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"ln","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"log2","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"x","type":"uint256"}],"name":"log10","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"}
]`

var (
	parseOnce  sync.Once
	blendedABI abi.ABI
	routerABI  abi.ABI
	parseErr   error
)

func parsedABIs() (abi.ABI, abi.ABI, error) {
	parseOnce.Do(func() {
		blendedABI, parseErr = abi.JSON(strings.NewReader(BlendedABI))
		if parseErr != nil {
			parseErr = fmt.Errorf("failed to parse blended ABI: %w", parseErr)
			return
		}
		routerABI, parseErr = abi.JSON(strings.NewReader(RouterABI))
		if parseErr != nil {
			parseErr = fmt.Errorf("failed to parse router ABI: %w", parseErr)
		}
	})
	return blendedABI, routerABI, parseErr
}

// Blended returns the parsed Solidity contract ABI.
func Blended() (abi.ABI, error) {
	b, _, err := parsedABIs()
	return b, err
}

// Router returns the parsed Rust router ABI.
func Router() (abi.ABI, error) {
	_, r, err := parsedABIs()
	return r, err
}

// MethodName maps a function and implementation onto the blended contract
// method, e.g. ("ln", rust) -> "lnRust".
func MethodName(fn mathlib.Function, impl Implementation) string {
	if impl == ImplRust {
		return string(fn) + "Rust"
	}
	return string(fn) + "Solidity"
}

func packCall(parsed abi.ABI, method string, x *big.Int) ([]byte, error) {
	data, err := parsed.Pack(method, x)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return data, nil
}

func unpackInt(parsed abi.ABI, method string, out []byte) (*big.Int, error) {
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %d return values from %s", len(values), method)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected return type %T from %s", values[0], method)
	}
	return v, nil
}

func unpackAddress(parsed abi.ABI, method string, out []byte) (common.Address, error) {
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected %d return values from %s", len(values), method)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected return type %T from %s", values[0], method)
	}
	return addr, nil
}
