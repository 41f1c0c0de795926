package loadtest

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type slowCalculator struct {
	delay time.Duration
	err   error
}

func (s slowCalculator) Calculate(ctx context.Context, fn mathlib.Function, impl contracts.Implementation, x *big.Int) (*contracts.Result, error) {
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return contracts.NewLocalCalculator().Calculate(ctx, fn, impl, x)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Rate = 200
	cfg.Duration = 300 * time.Millisecond
	cfg.Concurrency = 4
	return cfg
}

func TestRun(t *testing.T) {
	tester, err := NewTester(contracts.NewLocalCalculator(), fastConfig(), quietLogger())
	require.NoError(t, err)

	result, err := tester.Run(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, "local", result.Name)
	assert.Greater(t, result.Throughput, 0.0)

	require.Contains(t, result.Implementation, contracts.ImplSolidity)
	require.Contains(t, result.Implementation, contracts.ImplRust)
	for impl, st := range result.Implementation {
		assert.Zero(t, st.Failed, impl)
		assert.Equal(t, st.Sent, st.Mock, impl)
		assert.Equal(t, 100.0, st.SuccessRate(), impl)
		assert.LessOrEqual(t, st.MinLatency, st.AvgLatency)
		assert.LessOrEqual(t, st.P95Latency, st.MaxLatency)
	}
}

func TestRunSkipsWhenSaturated(t *testing.T) {
	cfg := fastConfig()
	cfg.Concurrency = 1
	tester, err := NewTester(slowCalculator{delay: 50 * time.Millisecond}, cfg, quietLogger())
	require.NoError(t, err)

	result, err := tester.Run(context.Background(), "saturated")
	require.NoError(t, err)
	assert.Greater(t, result.Skipped, int64(0))
}

func TestRunCountsFailures(t *testing.T) {
	tester, err := NewTester(slowCalculator{err: errors.New("rpc down")}, fastConfig(), quietLogger())
	require.NoError(t, err)

	result, err := tester.Run(context.Background(), "failing")
	require.NoError(t, err)
	st := result.Implementation[contracts.ImplSolidity]
	require.NotNil(t, st)
	assert.Equal(t, st.Sent, st.Failed)
	assert.Zero(t, st.SuccessRate())
	assert.Zero(t, result.Throughput)
}

func TestRunCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.Duration = time.Minute
	tester, err := NewTester(contracts.NewLocalCalculator(), cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tester.Run(ctx, "cancelled")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunSuite(t *testing.T) {
	cfg := fastConfig()
	cfg.Duration = 100 * time.Millisecond
	tester, err := NewTester(contracts.NewLocalCalculator(), cfg, quietLogger())
	require.NoError(t, err)

	results, err := tester.RunSuite(context.Background(), []Stage{
		{Name: "a", Rate: 100, Concurrency: 2},
		{Name: "b", Rate: 200, Concurrency: 4},
	}, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Name)
	assert.Equal(t, "b", results[1].Name)
	assert.Equal(t, cfg.Rate, tester.cfg.Rate)

	_, err = tester.RunSuite(context.Background(), []Stage{{Name: "bad", Rate: 0, Concurrency: 1}}, 0)
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"rate":          func(c *Config) { c.Rate = 0 },
		"rate too high": func(c *Config) { c.Rate = int(time.Second) + 1 },
		"duration":      func(c *Config) { c.Duration = 0 },
		"concurrency":   func(c *Config) { c.Concurrency = -1 },
		"functions":     func(c *Config) { c.Functions = nil },
		"input":         func(c *Config) { c.Input = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewTester(contracts.NewLocalCalculator(), cfg, nil)
			assert.Error(t, err)
		})
	}

	cfg := DefaultConfig()
	cfg.Rate = int(time.Second)
	_, err := NewTester(contracts.NewLocalCalculator(), cfg, nil)
	assert.NoError(t, err)
}

func TestFillLatencies(t *testing.T) {
	ls := make([]time.Duration, 0, 20)
	for i := 20; i >= 1; i-- {
		ls = append(ls, time.Duration(i)*time.Millisecond)
	}
	var st Stats
	fillLatencies(&st, ls)
	assert.Equal(t, time.Millisecond, st.MinLatency)
	assert.Equal(t, 20*time.Millisecond, st.MaxLatency)
	assert.Equal(t, 10500*time.Microsecond, st.AvgLatency)
	assert.Equal(t, 19*time.Millisecond, st.P95Latency)
}
