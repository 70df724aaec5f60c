package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects in-process counters for the preference services.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	operations map[string]*OperationMetrics
	filtered   map[string]int64
}

// OperationMetrics holds the counters of one operation.
type OperationMetrics struct {
	executionCount atomic.Int64
	totalDuration  atomic.Int64 // milliseconds
	errorCount     atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: make(map[string]*OperationMetrics),
		filtered:   make(map[string]int64),
	}
}

var globalMetrics = NewMetrics()

// GlobalMetrics returns the process-wide metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

func (m *Metrics) RecordRequest(operation string) {
	m.requestTotal.Add(1)
	m.operation(operation).executionCount.Add(1)
}

func (m *Metrics) RecordFailure(operation string) {
	m.requestFailed.Add(1)
	m.operation(operation).errorCount.Add(1)
}

func (m *Metrics) RecordDuration(operation string, duration time.Duration) {
	m.operation(operation).totalDuration.Add(duration.Milliseconds())
}

// RecordFiltered adds n to the count of suggestions dropped for reason.
func (m *Metrics) RecordFiltered(reason string, n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.filtered[reason] += int64(n)
	m.mu.Unlock()
}

func (m *Metrics) GetRequestTotal() int64 {
	return m.requestTotal.Load()
}

func (m *Metrics) GetRequestFailed() int64 {
	return m.requestFailed.Load()
}

// GetAverageDuration returns the average duration in milliseconds for an operation.
func (m *Metrics) GetAverageDuration(operation string) int64 {
	om := m.operation(operation)
	count := om.executionCount.Load()
	if count == 0 {
		return 0
	}
	return om.totalDuration.Load() / count
}

// GetOperations returns the recorded operation names in lexical order.
func (m *Metrics) GetOperations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.operations))
	for name := range m.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Metrics) operation(name string) *OperationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	om, ok := m.operations[name]
	if !ok {
		om = &OperationMetrics{}
		m.operations[name] = om
	}
	return om
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.requestTotal.Store(0)
	m.requestFailed.Store(0)

	m.mu.Lock()
	m.operations = make(map[string]*OperationMetrics)
	m.filtered = make(map[string]int64)
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := make(map[string]*OperationSnapshot, len(m.operations))
	for name, om := range m.operations {
		count := om.executionCount.Load()
		total := om.totalDuration.Load()
		snap := &OperationSnapshot{
			ExecutionCount: count,
			TotalDuration:  total,
			ErrorCount:     om.errorCount.Load(),
		}
		if count > 0 {
			snap.AverageDuration = total / count
		}
		ops[name] = snap
	}

	filtered := make(map[string]int64, len(m.filtered))
	for reason, n := range m.filtered {
		filtered[reason] = n
	}

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		Operations:    ops,
		Filtered:      filtered,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64
	RequestFailed int64
	Operations    map[string]*OperationSnapshot
	Filtered      map[string]int64
}

// OperationSnapshot represents metrics for a specific operation.
type OperationSnapshot struct {
	ExecutionCount  int64
	TotalDuration   int64
	ErrorCount      int64
	AverageDuration int64
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
