// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Pipeline stage names for the collector.
const (
	OpAcquire   = "acquire"
	OpTranscode = "transcode"
	OpRecognize = "recognize"
	OpPersist   = "persist"
)

// OperationMetrics holds aggregated timings for a single operation.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full service statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Acquire       *OperationSnapshot `json:"acquire,omitempty"`
	Transcode     *OperationSnapshot `json:"transcode,omitempty"`
	Recognize     *OperationSnapshot `json:"recognize,omitempty"`
	Persist       *OperationSnapshot `json:"persist,omitempty"`
	Segments      map[string]int64   `json:"segments"`
	Jobs          map[string]int64   `json:"jobs"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe to call on a nil *Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	segments  map[string]int64
	jobs      map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		segments:  make(map[string]int64),
		jobs:      make(map[string]int64),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.record(op, duration, false)
}

// RecordFailure records timing for an operation that returned an error.
func (c *Collector) RecordFailure(op string, duration time.Duration) {
	c.record(op, duration, true)
}

func (c *Collector) record(op string, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Time runs fn and records its duration under op.
func (c *Collector) Time(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.record(op, time.Since(start), err != nil)
	return err
}

// RecordSegment counts one segment outcome by kind.
func (c *Collector) RecordSegment(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.segments[kind]++
	c.mu.Unlock()
}

// RecordJob counts one job reaching the given terminal status.
func (c *Collector) RecordJob(status string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.jobs[status]++
	c.mu.Unlock()
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	segments := make(map[string]int64, len(c.segments))
	for k, v := range c.segments {
		segments[k] = v
	}
	jobs := make(map[string]int64, len(c.jobs))
	for k, v := range c.jobs {
		jobs[k] = v
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Acquire:       snapshotOp(c.ops[OpAcquire]),
		Transcode:     snapshotOp(c.ops[OpTranscode]),
		Recognize:     snapshotOp(c.ops[OpRecognize]),
		Persist:       snapshotOp(c.ops[OpPersist]),
		Segments:      segments,
		Jobs:          jobs,
	}
}
