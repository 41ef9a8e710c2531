package gateway

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencySummary is the delivery latency distribution in milliseconds.
type LatencySummary struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

// LatencyTracker keeps the last N publish-to-write delays of WS frames.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64 // ms, circular
	pos     int
	count   int
}

// NewLatencyTracker creates a tracker holding capacity samples (default 10000).
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{samples: make([]float64, capacity)}
}

// Record adds one sample.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	lt.samples[lt.pos] = float64(d.Microseconds()) / 1000
	lt.pos = (lt.pos + 1) % len(lt.samples)
	if lt.count < len(lt.samples) {
		lt.count++
	}
	lt.mu.Unlock()
}

// Summary computes p50/p95/p99 over the retained samples.
func (lt *LatencyTracker) Summary() LatencySummary {
	lt.mu.Lock()
	sorted := make([]float64, lt.count)
	if lt.count == len(lt.samples) {
		copy(sorted, lt.samples[lt.pos:])
		copy(sorted[len(lt.samples)-lt.pos:], lt.samples[:lt.pos])
	} else {
		copy(sorted, lt.samples[:lt.count])
	}
	lt.mu.Unlock()

	sort.Float64s(sorted)
	return LatencySummary{
		Count: len(sorted),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
}

// percentile interpolates the p-th percentile (0..1) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}
