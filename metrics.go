package adiskd

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets are the cumulative latency histogram boundaries (in
// nanoseconds) used for filter execution timing, spanning 10us to 10s.
var LatencyBuckets = []uint64{
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 7

// Metrics aggregates dev_stats-style counters across every search a
// server has run, for reporting outside the control protocol (e.g. a
// process-level /metrics endpoint).
type Metrics struct {
	ObjTotal     atomic.Uint64
	ObjProcessed atomic.Uint64
	ObjPassed    atomic.Uint64
	ObjDropped   atomic.Uint64
	ObjSkipped   atomic.Uint64

	NetworkStalls atomic.Uint64
	TxFullStalls  atomic.Uint64

	TotalFilterLatencyNs atomic.Uint64
	FilterCallCount      atomic.Uint64
	LatencyHistogram     [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordObject records one object's terminal outcome for a search.
func (m *Metrics) RecordObject(passed, dropped, skipped bool) {
	m.ObjTotal.Add(1)
	m.ObjProcessed.Add(1)
	switch {
	case passed:
		m.ObjPassed.Add(1)
	case dropped:
		m.ObjDropped.Add(1)
	case skipped:
		m.ObjSkipped.Add(1)
	}
}

// RecordFilterCall records one filter invocation's latency.
func (m *Metrics) RecordFilterCall(latencyNs uint64) {
	m.TotalFilterLatencyNs.Add(latencyNs)
	m.FilterCallCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogram[i].Add(1)
		}
	}
}

// Stop marks the metrics instance's stop time.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time, arithmetic-ready copy of Metrics.
type Snapshot struct {
	ObjTotal     uint64
	ObjProcessed uint64
	ObjPassed    uint64
	ObjDropped   uint64
	ObjSkipped   uint64

	NetworkStalls uint64
	TxFullStalls  uint64

	AvgFilterLatencyNs uint64
	UptimeNs           uint64
	ObjectsPerSecond   float64
	DropRate           float64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot computes derived rates from the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		ObjTotal:      m.ObjTotal.Load(),
		ObjProcessed:  m.ObjProcessed.Load(),
		ObjPassed:     m.ObjPassed.Load(),
		ObjDropped:    m.ObjDropped.Load(),
		ObjSkipped:    m.ObjSkipped.Load(),
		NetworkStalls: m.NetworkStalls.Load(),
		TxFullStalls:  m.TxFullStalls.Load(),
	}

	if calls := m.FilterCallCount.Load(); calls > 0 {
		s.AvgFilterLatencyNs = m.TotalFilterLatencyNs.Load() / calls
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		s.UptimeNs = uint64(stop - start)
	} else {
		s.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	if s.UptimeNs > 0 {
		s.ObjectsPerSecond = float64(s.ObjProcessed) / (float64(s.UptimeNs) / 1e9)
	}
	if s.ObjProcessed > 0 {
		s.DropRate = float64(s.ObjDropped) / float64(s.ObjProcessed) * 100.0
	}

	for i := range s.LatencyHistogram {
		s.LatencyHistogram[i] = m.LatencyHistogram[i].Load()
	}
	return s
}

// Reset zeroes every counter and restarts the uptime clock.
func (m *Metrics) Reset() {
	m.ObjTotal.Store(0)
	m.ObjProcessed.Store(0)
	m.ObjPassed.Store(0)
	m.ObjDropped.Store(0)
	m.ObjSkipped.Store(0)
	m.NetworkStalls.Store(0)
	m.TxFullStalls.Store(0)
	m.TotalFilterLatencyNs.Store(0)
	m.FilterCallCount.Store(0)
	for i := range m.LatencyHistogram {
		m.LatencyHistogram[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}
