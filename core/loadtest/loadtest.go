// Package loadtest drives a Calculator at a fixed rate to compare how the
// Solidity and Rust paths hold up under load.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

// Config sets the request rate, run length and concurrency cap.
type Config struct {
	Rate        int
	Duration    time.Duration
	Concurrency int
	Functions   []mathlib.Function
	Input       *big.Int
}

// DefaultConfig is a short, gentle run against every function.
func DefaultConfig() Config {
	return Config{
		Rate:        10,
		Duration:    10 * time.Second,
		Concurrency: 5,
		Functions:   mathlib.Functions(),
		Input:       contracts.DefaultTestInput,
	}
}

func (c Config) validate() error {
	switch {
	case c.Rate <= 0:
		return errors.New("rate must be positive")
	case c.Rate > int(time.Second):
		// the tick interval would round to zero
		return errors.New("rate must not exceed 1e9 per second")
	case c.Duration <= 0:
		return errors.New("duration must be positive")
	case c.Concurrency <= 0:
		return errors.New("concurrency must be positive")
	case len(c.Functions) == 0:
		return errors.New("no functions to run")
	case c.Input == nil:
		return errors.New("no input")
	}
	return nil
}

// Stats summarises one implementation's calls.
type Stats struct {
	Sent       int64         `json:"sent"`
	Succeeded  int64         `json:"succeeded"`
	Failed     int64         `json:"failed"`
	Mock       int64         `json:"mock"`
	MinLatency time.Duration `json:"min_latency"`
	AvgLatency time.Duration `json:"avg_latency"`
	P95Latency time.Duration `json:"p95_latency"`
	MaxLatency time.Duration `json:"max_latency"`
}

// SuccessRate is the share of sent calls that returned a result, in percent.
func (s Stats) SuccessRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Sent) * 100
}

// Result is the outcome of one run.
type Result struct {
	Name           string                              `json:"name"`
	Duration       time.Duration                       `json:"duration"`
	Skipped        int64                               `json:"skipped"`
	Throughput     float64                             `json:"throughput"`
	Implementation map[contracts.Implementation]*Stats `json:"implementation"`
	Timestamp      time.Time                           `json:"timestamp"`
}

type sample struct {
	impl    contracts.Implementation
	latency time.Duration
	mock    bool
	err     error
}

// Tester alternates functions and implementations on every tick. A tick
// that finds all workers busy is counted as skipped.
type Tester struct {
	calc   contracts.Calculator
	cfg    Config
	logger *logrus.Logger

	sent    atomic.Int64
	skipped atomic.Int64

	mu      sync.Mutex
	samples []sample
}

func NewTester(calc contracts.Calculator, cfg Config, logger *logrus.Logger) (*Tester, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tester{calc: calc, cfg: cfg, logger: logger}, nil
}

// Run blocks until the configured duration has passed or ctx is done, then
// waits for in-flight calls.
func (t *Tester) Run(ctx context.Context, name string) (*Result, error) {
	t.sent.Store(0)
	t.skipped.Store(0)
	t.mu.Lock()
	t.samples = t.samples[:0]
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"name":        name,
		"rate":        t.cfg.Rate,
		"duration":    t.cfg.Duration,
		"concurrency": t.cfg.Concurrency,
	}).Info("🚀 Load test starting")

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.Duration)
	defer cancel()

	slots := make(chan struct{}, t.cfg.Concurrency)
	ticker := time.NewTicker(time.Second / time.Duration(t.cfg.Rate))
	defer ticker.Stop()

	var wg sync.WaitGroup
	start := time.Now()
	impls := contracts.Implementations()

loop:
	for n := 0; ; n++ {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
		}

		fn := t.cfg.Functions[n%len(t.cfg.Functions)]
		impl := impls[(n/len(t.cfg.Functions))%len(impls)]
		select {
		case slots <- struct{}{}:
		default:
			t.skipped.Add(1)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			t.call(ctx, fn, impl)
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := t.summarise(name, elapsed)
	t.logger.WithFields(logrus.Fields{
		"name":       name,
		"sent":       t.sent.Load(),
		"skipped":    result.Skipped,
		"throughput": fmt.Sprintf("%.2f/s", result.Throughput),
	}).Info("✅ Load test completed")
	return result, nil
}

func (t *Tester) call(ctx context.Context, fn mathlib.Function, impl contracts.Implementation) {
	t.sent.Add(1)
	start := time.Now()
	r, err := t.calc.Calculate(ctx, fn, impl, t.cfg.Input)
	s := sample{impl: impl, latency: time.Since(start), err: err}
	if err == nil {
		s.mock = r.Mock
	} else {
		t.logger.WithError(err).WithField("function", fn).Debug("Load test call failed")
	}

	t.mu.Lock()
	t.samples = append(t.samples, s)
	t.mu.Unlock()
}

func (t *Tester) summarise(name string, elapsed time.Duration) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := &Result{
		Name:           name,
		Duration:       elapsed,
		Skipped:        t.skipped.Load(),
		Implementation: make(map[contracts.Implementation]*Stats),
		Timestamp:      time.Now(),
	}

	latencies := make(map[contracts.Implementation][]time.Duration)
	var succeeded int64
	for _, s := range t.samples {
		st, ok := result.Implementation[s.impl]
		if !ok {
			st = &Stats{}
			result.Implementation[s.impl] = st
		}
		st.Sent++
		if s.err != nil {
			st.Failed++
			continue
		}
		st.Succeeded++
		succeeded++
		if s.mock {
			st.Mock++
		}
		latencies[s.impl] = append(latencies[s.impl], s.latency)
	}

	for impl, ls := range latencies {
		fillLatencies(result.Implementation[impl], ls)
	}
	if elapsed > 0 {
		result.Throughput = float64(succeeded) / elapsed.Seconds()
	}
	return result
}

func fillLatencies(st *Stats, ls []time.Duration) {
	sort.Slice(ls, func(i, j int) bool { return ls[i] < ls[j] })
	var total time.Duration
	for _, l := range ls {
		total += l
	}
	st.MinLatency = ls[0]
	st.MaxLatency = ls[len(ls)-1]
	st.AvgLatency = total / time.Duration(len(ls))
	st.P95Latency = ls[(len(ls)*95+99)/100-1]
}

// Stage is one step of a suite.
type Stage struct {
	Name        string
	Rate        int
	Concurrency int
}

// DefaultStages ramp from a baseline to a burst.
var DefaultStages = []Stage{
	{Name: "baseline", Rate: 5, Concurrency: 2},
	{Name: "moderate", Rate: 20, Concurrency: 5},
	{Name: "burst", Rate: 50, Concurrency: 10},
}

// RunSuite runs each stage with the tester's duration, pausing cooldown
// between stages.
func (t *Tester) RunSuite(ctx context.Context, stages []Stage, cooldown time.Duration) ([]*Result, error) {
	base := t.cfg
	defer func() { t.cfg = base }()

	results := make([]*Result, 0, len(stages))
	for i, st := range stages {
		if i > 0 && cooldown > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cooldown):
			}
		}

		cfg := base
		cfg.Rate, cfg.Concurrency = st.Rate, st.Concurrency
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("stage %s: %w", st.Name, err)
		}
		t.cfg = cfg

		r, err := t.Run(ctx, st.Name)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
