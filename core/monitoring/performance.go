package monitoring

import (
	"sync"
	"time"
)

const DefaultHistorySize = 50

// PerformanceHistory keeps the most recent durations per function and
// implementation for the comparison chart.
type PerformanceHistory struct {
	mu      sync.RWMutex
	size    int
	samples map[string]map[string][]float64
}

// PerformanceStats summarises one function.
type PerformanceStats struct {
	Samples map[string][]float64 `json:"samples_ms"`
	Average map[string]float64   `json:"average_ms"`
}

func NewPerformanceHistory(size int) *PerformanceHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &PerformanceHistory{size: size, samples: make(map[string]map[string][]float64)}
}

// Record appends a duration, dropping the oldest sample when full.
func (h *PerformanceHistory) Record(function, impl string, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byImpl, ok := h.samples[function]
	if !ok {
		byImpl = make(map[string][]float64)
		h.samples[function] = byImpl
	}
	s := append(byImpl[impl], float64(elapsed.Microseconds())/1000)
	if len(s) > h.size {
		s = s[len(s)-h.size:]
	}
	byImpl[impl] = s
}

// Snapshot copies the history.
func (h *PerformanceHistory) Snapshot() map[string]PerformanceStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]PerformanceStats, len(h.samples))
	for fn, byImpl := range h.samples {
		stats := PerformanceStats{
			Samples: make(map[string][]float64, len(byImpl)),
			Average: make(map[string]float64, len(byImpl)),
		}
		for impl, s := range byImpl {
			stats.Samples[impl] = append([]float64(nil), s...)
			var sum float64
			for _, v := range s {
				sum += v
			}
			if len(s) > 0 {
				stats.Average[impl] = sum / float64(len(s))
			}
		}
		out[fn] = stats
	}
	return out
}
