package deploy

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

const (
	DefaultGasLimit     = 3_000_000
	DefaultPollInterval = time.Second
	DefaultWaitTimeout  = 2 * time.Minute
)

var (
	ErrDeployFailed = errors.New("deployment transaction reverted")
	ErrNoCode       = errors.New("no code at deployed address")
	ErrNoKey        = errors.New("deployer private key not configured")
)

// Backend is what the deployer needs from a node. *ethclient.Client and the
// go-ethereum simulated client satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Deployer signs and submits contract-creation transactions.
type Deployer struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	from         common.Address
	gasLimit     uint64
	pollInterval time.Duration
	waitTimeout  time.Duration
	logger       *logrus.Logger
}

type Option func(*Deployer)

func WithGasLimit(gas uint64) Option {
	return func(d *Deployer) {
		if gas > 0 {
			d.gasLimit = gas
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(d *Deployer) { d.pollInterval = interval }
}

func WithWaitTimeout(timeout time.Duration) Option {
	return func(d *Deployer) { d.waitTimeout = timeout }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(d *Deployer) { d.logger = logger }
}

// NewDeployer creates a deployer for the given key.
func NewDeployer(backend Backend, key *ecdsa.PrivateKey, opts ...Option) (*Deployer, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	d := &Deployer{
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		gasLimit:     DefaultGasLimit,
		pollInterval: DefaultPollInterval,
		waitTimeout:  DefaultWaitTimeout,
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// From is the deployer account.
func (d *Deployer) From() common.Address {
	return d.from
}

// Balance returns the deployer's balance in wei.
func (d *Deployer) Balance(ctx context.Context) (*big.Int, error) {
	return d.backend.BalanceAt(ctx, d.from, nil)
}

// Receipt summarises a confirmed deployment.
type Receipt struct {
	Name        string
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Deploy sends code followed by the already encoded constructor arguments
// and waits until the contract exists on chain.
func (d *Deployer) Deploy(ctx context.Context, name string, code, args []byte) (*Receipt, error) {
	chainID, err := d.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	nonce, err := d.backend.PendingNonceAt(ctx, d.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := d.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	data := make([]byte, 0, len(code)+len(args))
	data = append(append(data, code...), args...)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      d.gasLimit,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), d.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign deployment: %w", err)
	}

	if err := d.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send deployment of %s: %w", name, err)
	}
	d.logger.WithFields(logrus.Fields{
		"contract": name,
		"tx":       signed.Hash().Hex(),
		"nonce":    nonce,
		"gas":      d.gasLimit,
	}).Info("Deployment transaction sent")

	receipt, err := d.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s in tx %s", ErrDeployFailed, name, signed.Hash().Hex())
	}

	deployed, err := d.backend.CodeAt(ctx, receipt.ContractAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to verify code at %s: %w", receipt.ContractAddress.Hex(), err)
	}
	if len(deployed) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, receipt.ContractAddress.Hex())
	}

	d.logger.WithFields(logrus.Fields{
		"contract": name,
		"address":  receipt.ContractAddress.Hex(),
		"block":    receipt.BlockNumber,
		"gas_used": receipt.GasUsed,
	}).Info("Contract deployed")

	return &Receipt{
		Name:        name,
		Address:     receipt.ContractAddress,
		TxHash:      signed.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// DeployArtifact deploys a with constructor arguments packed against its ABI.
func (d *Deployer) DeployArtifact(ctx context.Context, a *Artifact, args ...interface{}) (*Receipt, error) {
	var packed []byte
	if len(args) > 0 {
		if a.ABI == nil {
			return nil, fmt.Errorf("artifact %s has no ABI for constructor arguments", a.Name)
		}
		var err error
		if packed, err = ConstructorArgs(*a.ABI, args...); err != nil {
			return nil, err
		}
	}
	return d.Deploy(ctx, a.Name, a.Bytecode, packed)
}

// ConstructorArgs ABI-encodes constructor arguments.
func ConstructorArgs(parsed abi.ABI, args ...interface{}) ([]byte, error) {
	packed, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack constructor arguments: %w", err)
	}
	return packed, nil
}

func (d *Deployer) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, d.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			d.logger.WithError(err).WithField("tx", hash.Hex()).Debug("Receipt lookup failed")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
