package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Backend is the subset of the JSON-RPC surface the client needs. Both
// *ethclient.Client and the go-ethereum simulated client satisfy it.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var ErrWrongChain = errors.New("connected to unexpected chain")

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Client wraps an RPC backend with a retrying connectivity check and
// classified contract calls.
type Client struct {
	backend    Backend
	closer     func()
	logger     *logrus.Logger
	maxRetries int
	retryDelay time.Duration
}

type Option func(*Client)

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry sets the attempt count and the base delay of the linear backoff.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// New wraps an existing backend.
func New(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:    backend,
		closer:     func() {},
		logger:     logrus.StandardLogger(),
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	c := New(ec, opts...)
	c.closer = ec.Close
	return c, nil
}

// Backend exposes the wrapped backend.
func (c *Client) Backend() Backend {
	return c.backend
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.closer()
}

// CheckConnection asks for the latest block number, retrying up to
// maxRetries times. Attempt n waits n*retryDelay before the next one.
func (c *Client) CheckConnection(ctx context.Context) (uint64, error) {
	block, err := retry.DoWithData(
		func() (uint64, error) {
			return c.backend.BlockNumber(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n) * c.retryDelay
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WithFields(logrus.Fields{
				"attempt":      n + 1,
				"max_attempts": c.maxRetries,
			}).WithError(err).Warn("Connection attempt failed")
		}),
	)
	if err != nil {
		return 0, Classify(err)
	}

	c.logger.WithField("block", block).Debug("Connected to network")
	return block, nil
}

// VerifyChain fails with ErrWrongChain when the node reports another chain ID.
func (c *Client) VerifyChain(ctx context.Context, want uint64) error {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return Classify(err)
	}
	if !id.IsUint64() || id.Uint64() != want {
		return fmt.Errorf("%w: want %d, got %s", ErrWrongChain, want, id)
	}
	return nil
}

// ContractInfo is what the check command prints for a deployed address.
type ContractInfo struct {
	Address  common.Address `json:"address"`
	Balance  *big.Int       `json:"balance"`
	CodeSize int            `json:"code_size"`
}

// HasCode reports whether any bytecode is deployed at the address.
func (i *ContractInfo) HasCode() bool {
	return i.CodeSize > 0
}

// Inspect fetches balance and code size concurrently.
func (c *Client) Inspect(ctx context.Context, addr common.Address) (*ContractInfo, error) {
	info := &ContractInfo{Address: addr}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := c.backend.BalanceAt(gctx, addr, nil)
		if err != nil {
			return fmt.Errorf("failed to get balance of %s: %w", addr.Hex(), err)
		}
		info.Balance = bal
		return nil
	})
	g.Go(func() error {
		code, err := c.backend.CodeAt(gctx, addr, nil)
		if err != nil {
			return fmt.Errorf("failed to get code of %s: %w", addr.Hex(), err)
		}
		info.CodeSize = len(code)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Classify(err)
	}
	return info, nil
}

// Call performs an eth_call against the latest block. Failures come back as
// *CallError. An empty result from an address without code is reported as
// KindNotContract, since nodes answer such calls with success.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		ce := Classify(err)
		ce.Target = to
		if ce.Kind == KindGeneric && !c.hasCode(ctx, to) {
			ce.Kind = KindNotContract
		}
		return nil, ce
	}
	if len(out) == 0 && !c.hasCode(ctx, to) {
		return nil, &CallError{Kind: KindNotContract, Target: to, Err: errors.New("empty result")}
	}
	return out, nil
}

func (c *Client) hasCode(ctx context.Context, addr common.Address) bool {
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		// Unknown; do not claim the address is empty.
		return true
	}
	return len(code) > 0
}
