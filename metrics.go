package harddoom2

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the fence-wait latency histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for a device: submission
// throughput, ring back-pressure, fence-wait latency, and
// change-record garbage collection.
type Metrics struct {
	SubmitCalls    atomic.Uint64 // Total Submit calls
	CommandsAccepted atomic.Uint64 // Total commands accepted across all Submit calls
	SubmitErrors   atomic.Uint64 // Submit calls that returned an error

	BackpressureStalls atomic.Uint64 // Times a submitter blocked on ring free space
	PongAsyncWakeups   atomic.Uint64 // Times a PONG_ASYNC interrupt woke a blocked submitter

	FenceWaits        atomic.Uint64 // Total Wait calls on the fence engine
	FenceWaitLatencyNs atomic.Uint64 // Cumulative fence-wait latency
	FenceWaitCount     atomic.Uint64 // Wait calls that actually blocked (for average latency)
	FenceWaitBuckets   [numLatencyBuckets]atomic.Uint64

	ChangeRecordsCreated  atomic.Uint64 // SETUP commands that displaced at least one handle
	ChangeRecordsCollected atomic.Uint64 // Change records popped by the GC
	HandlesReleased        atomic.Uint64 // Handle references released by the GC

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSubmit records one Submit call.
func (m *Metrics) RecordSubmit(commandsAccepted uint64, success bool) {
	m.SubmitCalls.Add(1)
	if success {
		m.CommandsAccepted.Add(commandsAccepted)
	} else {
		m.SubmitErrors.Add(1)
	}
}

// RecordBackpressureStall records one back-pressure block in the ring
// writer.
func (m *Metrics) RecordBackpressureStall() {
	m.BackpressureStalls.Add(1)
}

// RecordPongAsyncWakeup records one PONG_ASYNC-driven wakeup of a
// blocked submitter.
func (m *Metrics) RecordPongAsyncWakeup() {
	m.PongAsyncWakeups.Add(1)
}

// RecordFenceWait records one fence Wait call and, if it actually
// blocked, its latency.
func (m *Metrics) RecordFenceWait(latencyNs uint64, blocked bool) {
	m.FenceWaits.Add(1)
	if !blocked {
		return
	}
	m.FenceWaitLatencyNs.Add(latencyNs)
	m.FenceWaitCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.FenceWaitBuckets[i].Add(1)
		}
	}
}

// RecordChangeRecordCreated records one SETUP command displacing at
// least one bound handle.
func (m *Metrics) RecordChangeRecordCreated() {
	m.ChangeRecordsCreated.Add(1)
}

// RecordChangeRecordsCollected records the GC popping n change records
// releasing handles references in total.
func (m *Metrics) RecordChangeRecordsCollected(n, handles uint64) {
	m.ChangeRecordsCollected.Add(n)
	m.HandlesReleased.Add(handles)
}

// Stop marks the device as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	SubmitCalls      uint64
	CommandsAccepted uint64
	SubmitErrors     uint64

	BackpressureStalls uint64
	PongAsyncWakeups   uint64

	FenceWaits         uint64
	AvgFenceWaitNs     uint64
	FenceWaitHistogram [numLatencyBuckets]uint64
	FenceWaitP50Ns     uint64
	FenceWaitP99Ns     uint64

	ChangeRecordsCreated   uint64
	ChangeRecordsCollected uint64
	HandlesReleased        uint64

	UptimeNs uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SubmitCalls:            m.SubmitCalls.Load(),
		CommandsAccepted:       m.CommandsAccepted.Load(),
		SubmitErrors:           m.SubmitErrors.Load(),
		BackpressureStalls:     m.BackpressureStalls.Load(),
		PongAsyncWakeups:       m.PongAsyncWakeups.Load(),
		FenceWaits:             m.FenceWaits.Load(),
		ChangeRecordsCreated:   m.ChangeRecordsCreated.Load(),
		ChangeRecordsCollected: m.ChangeRecordsCollected.Load(),
		HandlesReleased:        m.HandlesReleased.Load(),
	}

	fenceWaitCount := m.FenceWaitCount.Load()
	if fenceWaitCount > 0 {
		snap.AvgFenceWaitNs = m.FenceWaitLatencyNs.Load() / fenceWaitCount
		snap.FenceWaitP50Ns = m.calculatePercentile(0.50)
		snap.FenceWaitP99Ns = m.calculatePercentile(0.99)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.FenceWaitHistogram[i] = m.FenceWaitBuckets[i].Load()
	}

	return snap
}

// calculatePercentile estimates the fence-wait latency at the given
// percentile (0.0-1.0) by linear interpolation between histogram
// buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.FenceWaitCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.FenceWaitBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.FenceWaitBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters. Useful for tests.
func (m *Metrics) Reset() {
	m.SubmitCalls.Store(0)
	m.CommandsAccepted.Store(0)
	m.SubmitErrors.Store(0)
	m.BackpressureStalls.Store(0)
	m.PongAsyncWakeups.Store(0)
	m.FenceWaits.Store(0)
	m.FenceWaitLatencyNs.Store(0)
	m.FenceWaitCount.Store(0)
	m.ChangeRecordsCreated.Store(0)
	m.ChangeRecordsCollected.Store(0)
	m.HandlesReleased.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.FenceWaitBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, mirrored on Device's
// operations.
type Observer interface {
	ObserveSubmit(commandsAccepted uint64, success bool)
	ObserveBackpressure()
	ObservePongAsyncWakeup()
	ObserveFenceWait(latencyNs uint64, blocked bool)
	ObserveChangeRecordCreated()
	ObserveChangeRecordsCollected(n, handles uint64)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSubmit(uint64, bool)             {}
func (NoOpObserver) ObserveBackpressure()                   {}
func (NoOpObserver) ObservePongAsyncWakeup()                {}
func (NoOpObserver) ObserveFenceWait(uint64, bool)          {}
func (NoOpObserver) ObserveChangeRecordCreated()            {}
func (NoOpObserver) ObserveChangeRecordsCollected(uint64, uint64) {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSubmit(commandsAccepted uint64, success bool) {
	o.metrics.RecordSubmit(commandsAccepted, success)
}

func (o *MetricsObserver) ObserveBackpressure() {
	o.metrics.RecordBackpressureStall()
}

func (o *MetricsObserver) ObservePongAsyncWakeup() {
	o.metrics.RecordPongAsyncWakeup()
}

func (o *MetricsObserver) ObserveFenceWait(latencyNs uint64, blocked bool) {
	o.metrics.RecordFenceWait(latencyNs, blocked)
}

func (o *MetricsObserver) ObserveChangeRecordCreated() {
	o.metrics.RecordChangeRecordCreated()
}

func (o *MetricsObserver) ObserveChangeRecordsCollected(n, handles uint64) {
	o.metrics.RecordChangeRecordsCollected(n, handles)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
