package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the connection state shown in the UI banner.
type State string

const (
	StateLoading   State = "loading"
	StateConnected State = "connected"
	StateFailed    State = "failed"
)

const (
	DefaultInterval   = 15 * time.Second
	DefaultRetryDelay = 3 * time.Second
)

// Checker reports the latest block or why it could not be read.
// *rpcclient.Client satisfies it.
type Checker interface {
	CheckConnection(ctx context.Context) (uint64, error)
}

// Status is a snapshot of the monitor.
type Status struct {
	State       State     `json:"state"`
	BlockNumber uint64    `json:"block_number"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// ConnectionMonitor polls the node and tracks loading -> connected|failed.
// After a failure it retries on the shorter retry delay.
type ConnectionMonitor struct {
	checker    Checker
	interval   time.Duration
	retryDelay time.Duration
	metrics    *Metrics
	logger     *logrus.Logger

	mu          sync.RWMutex
	status      Status
	subscribers map[int]chan Status
	nextID      int
	isRunning   bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewConnectionMonitor creates a monitor in the loading state. metrics may be nil.
func NewConnectionMonitor(checker Checker, interval, retryDelay time.Duration, metrics *Metrics, logger *logrus.Logger) *ConnectionMonitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConnectionMonitor{
		checker:     checker,
		interval:    interval,
		retryDelay:  retryDelay,
		metrics:     metrics,
		logger:      logger,
		status:      Status{State: StateLoading},
		subscribers: make(map[int]chan Status),
	}
}

// Start runs the polling loop until Stop or until ctx is done.
func (m *ConnectionMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("connection monitor is already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.isRunning = true
	go m.loop(ctx, m.done)

	m.logger.WithField("interval", m.interval).Info("Connection monitor started")
	return nil
}

// Stop halts the loop and waits for it to exit.
func (m *ConnectionMonitor) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("connection monitor is not running")
	}
	cancel, done := m.cancel, m.done
	m.isRunning = false
	m.mu.Unlock()

	cancel()
	<-done

	m.logger.Info("Connection monitor stopped")
	return nil
}

func (m *ConnectionMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		status := m.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		if status.State == StateFailed {
			timer.Reset(m.retryDelay)
		} else {
			timer.Reset(m.interval)
		}
	}
}

// Check polls once and records the outcome.
func (m *ConnectionMonitor) Check(ctx context.Context) Status {
	block, err := m.checker.CheckConnection(ctx)

	next := Status{State: StateConnected, BlockNumber: block, LastChecked: time.Now()}
	if err != nil {
		next = Status{State: StateFailed, Error: err.Error(), LastChecked: next.LastChecked}
		m.mu.RLock()
		next.BlockNumber = m.status.BlockNumber
		m.mu.RUnlock()
	}
	m.update(next)
	return next
}

func (m *ConnectionMonitor) update(next Status) {
	m.mu.Lock()
	prev := m.status
	m.status = next
	var subs []chan Status
	if prev.State != next.State {
		for _, ch := range m.subscribers {
			subs = append(subs, ch)
		}
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetConnection(next.State, next.BlockNumber)
	}
	if prev.State == next.State {
		return
	}

	entry := m.logger.WithFields(logrus.Fields{"from": prev.State, "to": next.State})
	if next.State == StateFailed {
		entry.WithField("error", next.Error).Warn("Connection lost")
	} else {
		entry.WithField("block", next.BlockNumber).Info("Connection state changed")
	}

	for _, ch := range subs {
		deliver(ch, next)
	}
}

// deliver replaces any undelivered status so slow subscribers only see the
// latest one.
func deliver(ch chan Status, s Status) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Status returns the current snapshot.
func (m *ConnectionMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe returns a channel that receives the status on every state
// change, and a function that unsubscribes.
func (m *ConnectionMonitor) Subscribe() (<-chan Status, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Status, 1)
	m.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}
