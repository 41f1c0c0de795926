package deploy

import (
	"context"
	"crypto/ecdsa"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answerInit deploys a runtime that returns 42 for any call.
const answerInit = "0x600a600c600039600a6000f3602a60005260206000f3"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newChain starts a simulated chain with a funded key and mines a block
// every few milliseconds until the test ends.
func newChain(t *testing.T) (simulated.Client, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	balance := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: balance},
	})

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
		backend.Close()
	})
	return backend.Client(), key
}

func newDeployer(t *testing.T, client simulated.Client, key *ecdsa.PrivateKey) *Deployer {
	t.Helper()
	d, err := NewDeployer(client, key,
		WithPollInterval(5*time.Millisecond),
		WithWaitTimeout(10*time.Second),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	return d
}

func TestDeploy(t *testing.T) {
	client, key := newChain(t)
	d := newDeployer(t, client, key)
	ctx := context.Background()

	receipt, err := d.Deploy(ctx, "answer", common.FromHex(answerInit), nil)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, receipt.Address)
	assert.Greater(t, receipt.GasUsed, uint64(0))

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &receipt.Address}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), new(big.Int).SetBytes(out).Int64())

	bal, err := d.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bal.Sign())
}

func TestDeployFailures(t *testing.T) {
	client, key := newChain(t)
	d := newDeployer(t, client, key)
	ctx := context.Background()

	t.Run("reverting init code", func(t *testing.T) {
		_, err := d.Deploy(ctx, "invalid", []byte{0xfe}, nil)
		assert.ErrorIs(t, err, ErrDeployFailed)
	})

	t.Run("empty runtime", func(t *testing.T) {
		_, err := d.Deploy(ctx, "stop", []byte{0x00}, nil)
		assert.ErrorIs(t, err, ErrNoCode)
	})
}

func TestNewDeployerRequiresKey(t *testing.T) {
	_, err := NewDeployer(nil, nil)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestDeployPair(t *testing.T) {
	client, key := newChain(t)
	d := newDeployer(t, client, key)

	rust := &Artifact{Name: "router", Bytecode: common.FromHex(answerInit)}
	sol := &Artifact{Name: "prbMathBlended", Bytecode: common.FromHex(answerInit)}

	result, err := DeployPair(context.Background(), d, rust, sol)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), result.Deployer)
	assert.NotEqual(t, result.Rust.Address, result.Solidity.Address)
	require.NotNil(t, sol.ABI)
}

func TestDeployArtifactNeedsABI(t *testing.T) {
	sol := &Artifact{Name: "prbMathBlended"}
	_, err := (&Deployer{}).DeployArtifact(context.Background(), sol, common.Address{})
	assert.Error(t, err)
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()

	t.Run("hex bin", func(t *testing.T) {
		path := filepath.Join(dir, "answer.bin")
		require.NoError(t, os.WriteFile(path, []byte(answerInit[2:]+"\n"), 0o644))

		a, err := LoadArtifact(path)
		require.NoError(t, err)
		assert.Equal(t, "answer", a.Name)
		assert.Equal(t, common.FromHex(answerInit), a.Bytecode)
	})

	t.Run("wasm", func(t *testing.T) {
		path := filepath.Join(dir, "router.wasm")
		wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
		require.NoError(t, os.WriteFile(path, wasm, 0o644))

		a, err := LoadArtifact(path)
		require.NoError(t, err)
		assert.Equal(t, wasm, a.Bytecode)
	})

	t.Run("bad hex", func(t *testing.T) {
		path := filepath.Join(dir, "broken.hex")
		require.NoError(t, os.WriteFile(path, []byte("0xzz"), 0o644))
		_, err := LoadArtifact(path)
		assert.Error(t, err)
	})

	t.Run("unknown extension", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))
		_, err := LoadArtifact(path)
		assert.ErrorIs(t, err, ErrUnknownArtifact)
	})
}

const combinedJSON = `{
  "contracts": {
    "contracts/prbMathBlended.sol:prbMathBlended": {
      "abi": [{"inputs":[{"name":"_rustContract","type":"address"}],"stateMutability":"nonpayable","type":"constructor"}],
      "bin": "600a600c600039600a6000f3602a60005260206000f3"
    },
    "contracts/Legacy.sol:Legacy": {
      "abi": "[]",
      "bin": "00"
    }
  },
  "version": "0.8.19+commit.7dd6d404"
}`

func TestParseCombinedJSON(t *testing.T) {
	artifacts, err := parseCombinedJSON([]byte(combinedJSON))
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	blended := artifacts["prbMathBlended"]
	require.NotNil(t, blended)
	assert.Len(t, blended.ABI.Constructor.Inputs, 1)
	assert.Equal(t, common.FromHex(answerInit), blended.Bytecode)

	legacy := artifacts["Legacy"]
	require.NotNil(t, legacy)
	assert.Empty(t, legacy.ABI.Methods)
}

func TestCompilerWithFakeSolc(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for solc")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(out, []byte(combinedJSON), 0o644))
	script := filepath.Join(dir, "solc")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat "+out+"\n"), 0o755))

	c := &Compiler{Path: script}
	a, err := c.CompileContract(context.Background(), "prbMathBlended", "prbMathBlended.sol")
	require.NoError(t, err)
	assert.Equal(t, "prbMathBlended", a.Name)

	_, err = c.CompileContract(context.Background(), "Missing", "prbMathBlended.sol")
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestCompilerMissingBinary(t *testing.T) {
	c := &Compiler{Path: filepath.Join(t.TempDir(), "no-solc")}
	_, err := c.Compile(context.Background(), "x.sol")
	assert.ErrorIs(t, err, ErrCompilerNotFound)
}
