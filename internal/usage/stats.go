// Package usage maintains in-memory dispatch statistics for the serve-mode
// /v1/stats endpoint: totals, per-service and per-source breakdowns, and
// attempt counts.
package usage

import (
	"sync"
	"time"
)

// DispatchStatistics aggregates dispatch outcomes in memory.
type DispatchStatistics struct {
	mu sync.RWMutex

	totalDispatches int64
	successCount    int64
	failureCount    int64
	totalAttempts   int64

	byService map[string]int64
	bySource  map[string]int64
	byOutcome map[string]int64
	byDay     map[string]int64
}

var defaultStatistics = NewDispatchStatistics()

// Default returns the shared statistics store.
func Default() *DispatchStatistics { return defaultStatistics }

// NewDispatchStatistics constructs an empty store.
func NewDispatchStatistics() *DispatchStatistics {
	return &DispatchStatistics{
		byService: make(map[string]int64),
		bySource:  make(map[string]int64),
		byOutcome: make(map[string]int64),
		byDay:     make(map[string]int64),
	}
}

// Record ingests one finished dispatch.
func (s *DispatchStatistics) Record(service, source, outcome string, attempts int, success bool) {
	dayKey := time.Now().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalDispatches++
	if success {
		s.successCount++
	} else {
		s.failureCount++
	}
	s.totalAttempts += int64(attempts)
	s.byService[service]++
	if source != "" {
		s.bySource[source]++
	}
	s.byOutcome[outcome]++
	s.byDay[dayKey]++
}

// Snapshot is an immutable view of the aggregates.
type Snapshot struct {
	TotalDispatches int64            `json:"total_dispatches"`
	SuccessCount    int64            `json:"success_count"`
	FailureCount    int64            `json:"failure_count"`
	TotalAttempts   int64            `json:"total_attempts"`
	ByService       map[string]int64 `json:"by_service"`
	BySource        map[string]int64 `json:"by_source"`
	ByOutcome       map[string]int64 `json:"by_outcome"`
	ByDay           map[string]int64 `json:"by_day"`
}

// Snapshot returns a copy of the aggregates for external consumption.
func (s *DispatchStatistics) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{
		TotalDispatches: s.totalDispatches,
		SuccessCount:    s.successCount,
		FailureCount:    s.failureCount,
		TotalAttempts:   s.totalAttempts,
		ByService:       make(map[string]int64, len(s.byService)),
		BySource:        make(map[string]int64, len(s.bySource)),
		ByOutcome:       make(map[string]int64, len(s.byOutcome)),
		ByDay:           make(map[string]int64, len(s.byDay)),
	}
	for k, v := range s.byService {
		out.ByService[k] = v
	}
	for k, v := range s.bySource {
		out.BySource[k] = v
	}
	for k, v := range s.byOutcome {
		out.ByOutcome[k] = v
	}
	for k, v := range s.byDay {
		out.ByDay[k] = v
	}
	return out
}
