// Package metrics tracks per-opcode invocation counts and timings for
// introspection, the same struct-plus-ToMap style the teacher's
// cmd/workflow-runner/metrics.RuntimeMetrics uses for runtime stats —
// generalized from one fixed set of memory/goroutine fields to a dynamic
// per-opcode counter table.
package metrics

import (
	"sync"
	"time"
)

// OpcodeStats is one opcode's accumulated invocation statistics.
type OpcodeStats struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	ErrorCount    int64         `json:"error_count"`
}

// AverageDuration returns TotalDuration / Count, or 0 if Count is 0.
func (s OpcodeStats) AverageDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

// ToMap renders s for JSON/YAML serialization.
func (s OpcodeStats) ToMap() map[string]any {
	return map[string]any{
		"count":            s.Count,
		"error_count":      s.ErrorCount,
		"total_duration_ms": float64(s.TotalDuration) / float64(time.Millisecond),
		"avg_duration_ms":   float64(s.AverageDuration()) / float64(time.Millisecond),
	}
}

// Collector accumulates OpcodeStats across a run. Concurrency-safe,
// since fork/spawn branches invoke opcodes from multiple goroutines.
type Collector struct {
	mu    sync.Mutex
	stats map[string]*OpcodeStats
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{stats: make(map[string]*OpcodeStats)}
}

// Record adds one invocation of opcode to the collector.
func (c *Collector) Record(opcode string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[opcode]
	if !ok {
		s = &OpcodeStats{}
		c.stats[opcode] = s
	}
	s.Count++
	s.TotalDuration += duration
	if failed {
		s.ErrorCount++
	}
}

// Snapshot returns a point-in-time copy of every opcode's stats.
func (c *Collector) Snapshot() map[string]OpcodeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]OpcodeStats, len(c.stats))
	for opcode, s := range c.stats {
		out[opcode] = *s
	}
	return out
}

// ToMap renders the full snapshot for JSON/YAML serialization.
func (c *Collector) ToMap() map[string]any {
	snapshot := c.Snapshot()
	out := make(map[string]any, len(snapshot))
	for opcode, s := range snapshot {
		out[opcode] = s.ToMap()
	}
	return out
}
