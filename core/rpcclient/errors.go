package rpcclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind groups RPC failures by what the user can do about them.
type Kind int

const (
	KindGeneric Kind = iota
	KindRevert
	KindTimeout
	KindRateLimit
	KindNotContract
)

// codeLimitExceeded is the JSON-RPC code providers use for throttling.
const codeLimitExceeded = -32005

func (k Kind) String() string {
	switch k {
	case KindRevert:
		return "revert"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindNotContract:
		return "not_contract"
	default:
		return "generic"
	}
}

// CallError is a classified RPC failure.
type CallError struct {
	Kind   Kind
	Reason string
	Target common.Address
	Err    error
}

func (e *CallError) Error() string {
	return e.UserMessage()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// UserMessage is the short text shown in the CLI and API responses.
func (e *CallError) UserMessage() string {
	switch e.Kind {
	case KindRevert:
		if e.Reason == "" {
			return "Contract reverted without a reason"
		}
		return "Contract reverted: " + e.Reason
	case KindTimeout:
		return "Network request timed out"
	case KindRateLimit:
		return "Provider rate limit reached, try again shortly"
	case KindNotContract:
		return "No contract deployed at " + e.Target.Hex()
	default:
		if e.Err == nil {
			return "Request failed"
		}
		return "Request failed: " + e.Err.Error()
	}
}

// Classify maps an arbitrary RPC error onto a CallError. A nil error gives nil.
func Classify(err error) *CallError {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case isTimeout(err):
		return &CallError{Kind: KindTimeout, Err: err}
	case isRateLimit(err):
		return &CallError{Kind: KindRateLimit, Err: err}
	}
	if reason, ok := revertReason(err); ok {
		return &CallError{Kind: KindRevert, Reason: reason, Err: err}
	}
	return &CallError{Kind: KindGeneric, Err: err}
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Kind == k
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}

func isRateLimit(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeLimitExceeded {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}

// revertReason extracts the decoded Error(string) payload when the node
// attached revert data, falling back to the text after "execution reverted".
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
				return "", true
			}
		}
	}

	msg := err.Error()
	const marker = "execution reverted"
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimPrefix(msg[idx+len(marker):], ":")
	return strings.TrimSpace(rest), true
}
