package rpcclient

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	blockCalls atomic.Int32
	mu         sync.Mutex
	blockTimes []time.Time
	failFirst  int32
	blockErr   error
	chainID    *big.Int
	balance    *big.Int
	code       map[common.Address][]byte
	callOut    []byte
	callErr    error
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	f.blockTimes = append(f.blockTimes, time.Now())
	f.mu.Unlock()

	n := f.blockCalls.Add(1)
	if n <= f.failFirst {
		return 0, f.blockErr
	}
	return 100, nil
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code[account], nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callOut, f.callErr
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var contractAddr = common.HexToAddress("0x87B99c706E17211F313E21F1ED98782e19E91fB2")

func TestCheckConnection(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		fb := &fakeBackend{failFirst: 2, blockErr: errors.New("connection refused")}
		c := New(fb, WithLogger(quietLogger()), WithRetry(3, time.Millisecond))

		block, err := c.CheckConnection(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(100), block)
		assert.Equal(t, int32(3), fb.blockCalls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		fb := &fakeBackend{failFirst: 10, blockErr: errors.New("connection refused")}
		c := New(fb, WithLogger(quietLogger()), WithRetry(3, time.Millisecond))

		_, err := c.CheckConnection(context.Background())
		require.Error(t, err)
		assert.Equal(t, int32(3), fb.blockCalls.Load())
		assert.True(t, IsKind(err, KindGeneric))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("delays grow linearly", func(t *testing.T) {
		fb := &fakeBackend{failFirst: 2, blockErr: errors.New("down")}
		c := New(fb, WithLogger(quietLogger()), WithRetry(3, 20*time.Millisecond))

		_, err := c.CheckConnection(context.Background())
		require.NoError(t, err)
		require.Len(t, fb.blockTimes, 3)

		// 20ms after the first failure, 40ms after the second.
		gap1 := fb.blockTimes[1].Sub(fb.blockTimes[0])
		gap2 := fb.blockTimes[2].Sub(fb.blockTimes[1])
		assert.GreaterOrEqual(t, gap1, 20*time.Millisecond)
		assert.Less(t, gap1, 38*time.Millisecond)
		assert.GreaterOrEqual(t, gap2, 40*time.Millisecond)
		assert.Less(t, gap2, 58*time.Millisecond)
	})
}

func TestVerifyChain(t *testing.T) {
	c := New(&fakeBackend{chainID: big.NewInt(20993)}, WithLogger(quietLogger()))

	assert.NoError(t, c.VerifyChain(context.Background(), 20993))
	err := c.VerifyChain(context.Background(), 1)
	assert.ErrorIs(t, err, ErrWrongChain)
}

func TestInspect(t *testing.T) {
	fb := &fakeBackend{
		balance: big.NewInt(42),
		code:    map[common.Address][]byte{contractAddr: {0x60, 0x80, 0x60, 0x40}},
	}
	c := New(fb, WithLogger(quietLogger()))

	info, err := c.Inspect(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Balance.Int64())
	assert.Equal(t, 4, info.CodeSize)
	assert.True(t, info.HasCode())

	empty, err := c.Inspect(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.False(t, empty.HasCode())
}

func TestCallNotContract(t *testing.T) {
	fb := &fakeBackend{code: map[common.Address][]byte{}}
	c := New(fb, WithLogger(quietLogger()))

	_, err := c.Call(context.Background(), contractAddr, []byte{0x01})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotContract))
	assert.Equal(t, "No contract deployed at 0x87B99c706E17211F313E21F1ED98782e19E91fB2", err.Error())
}

func TestCallReturnsOutput(t *testing.T) {
	fb := &fakeBackend{
		code:    map[common.Address][]byte{contractAddr: {0x00}},
		callOut: common.LeftPadBytes([]byte{42}, 32),
	}
	c := New(fb, WithLogger(quietLogger()))

	out, err := c.Call(context.Background(), contractAddr, nil)
	require.NoError(t, err)
	assert.Len(t, out, 32)
	assert.Equal(t, byte(42), out[31])
}

type dataError struct {
	msg  string
	data string
}

func (e *dataError) Error() string          { return e.msg }
func (e *dataError) ErrorCode() int         { return 3 }
func (e *dataError) ErrorData() interface{} { return e.data }

type codeError struct {
	msg  string
	code int
}

func (e *codeError) Error() string  { return e.msg }
func (e *codeError) ErrorCode() int { return e.code }

func revertData(t *testing.T, reason string) string {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	return hexutil.Encode(append(common.FromHex("0x08c379a0"), packed...))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	t.Run("revert with data", func(t *testing.T) {
		err := &dataError{msg: "execution reverted", data: revertData(t, "negative input")}
		ce := Classify(err)
		assert.Equal(t, KindRevert, ce.Kind)
		assert.Equal(t, "Contract reverted: negative input", ce.UserMessage())
	})

	t.Run("revert from message", func(t *testing.T) {
		ce := Classify(errors.New("execution reverted: ln of zero"))
		assert.Equal(t, KindRevert, ce.Kind)
		assert.Equal(t, "ln of zero", ce.Reason)
	})

	t.Run("bare revert", func(t *testing.T) {
		ce := Classify(errors.New("execution reverted"))
		assert.Equal(t, KindRevert, ce.Kind)
		assert.Equal(t, "Contract reverted without a reason", ce.UserMessage())
	})

	t.Run("timeout", func(t *testing.T) {
		ce := Classify(context.DeadlineExceeded)
		assert.Equal(t, KindTimeout, ce.Kind)
		assert.Equal(t, "Network request timed out", ce.UserMessage())
	})

	t.Run("rate limit code", func(t *testing.T) {
		ce := Classify(&codeError{msg: "limit exceeded", code: -32005})
		assert.Equal(t, KindRateLimit, ce.Kind)
	})

	t.Run("rate limit http", func(t *testing.T) {
		ce := Classify(rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"})
		assert.Equal(t, KindRateLimit, ce.Kind)
	})

	t.Run("generic", func(t *testing.T) {
		ce := Classify(errors.New("boom"))
		assert.Equal(t, KindGeneric, ce.Kind)
		assert.Equal(t, "Request failed: boom", ce.UserMessage())
	})

	t.Run("already classified", func(t *testing.T) {
		orig := &CallError{Kind: KindTimeout}
		assert.Same(t, orig, Classify(orig))
	})
}

func TestCallClassifiesRevert(t *testing.T) {
	fb := &fakeBackend{
		code:    map[common.Address][]byte{contractAddr: {0x00}},
		callErr: errors.New("execution reverted: Math: overflow"),
	}
	c := New(fb, WithLogger(quietLogger()))

	_, err := c.Call(context.Background(), contractAddr, nil)
	require.Error(t, err)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindRevert, ce.Kind)
	assert.Equal(t, contractAddr, ce.Target)
	assert.Equal(t, "Contract reverted: Math: overflow", ce.UserMessage())
}
