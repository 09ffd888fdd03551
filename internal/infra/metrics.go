package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety: the room actor and connection
// goroutines update counters concurrently with readers.
type Metrics struct {
	// Counters
	ticksProcessed atomic.Uint64
	ordersAccepted atomic.Uint64
	ordersRejected atomic.Uint64
	updatesFanned  atomic.Uint64

	// Tick latency tracking
	tickLatencySumNs atomic.Int64
	tickLatencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordTick records one completed tick with its settlement+broadcast
// latency and the number of connections fanned out to.
func (m *Metrics) RecordTick(latencyNs int64, fanout int) {
	m.ticksProcessed.Add(1)
	m.updatesFanned.Add(uint64(fanout))
	m.tickLatencySumNs.Add(latencyNs)
	m.tickLatencyCount.Add(1)
}

// RecordOrderPlaced records one order submission by validation outcome.
func (m *Metrics) RecordOrderPlaced(valid bool) {
	if valid {
		m.ordersAccepted.Add(1)
	} else {
		m.ordersRejected.Add(1)
	}
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TicksProcessed    uint64
	OrdersAccepted    uint64
	OrdersRejected    uint64
	UpdatesFanned     uint64
	AvgTickLatencyNs  int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns a consistent-enough view for logging or a status endpoint.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TicksProcessed:    m.ticksProcessed.Load(),
		OrdersAccepted:    m.ordersAccepted.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		UpdatesFanned:     m.updatesFanned.Load(),
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
	if count := m.tickLatencyCount.Load(); count > 0 {
		snap.AvgTickLatencyNs = m.tickLatencySumNs.Load() / int64(count)
	}
	return snap
}
