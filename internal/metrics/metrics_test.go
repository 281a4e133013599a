package metrics

import (
	"testing"
	"time"
)

func TestRecordAccumulates(t *testing.T) {
	c := New()
	c.Record("op_add", 10*time.Millisecond, false)
	c.Record("op_add", 30*time.Millisecond, false)
	c.Record("op_add", 5*time.Millisecond, true)

	snap := c.Snapshot()
	stats := snap["op_add"]
	if stats.Count != 3 {
		t.Fatalf("Count = %d, want 3", stats.Count)
	}
	if stats.ErrorCount != 1 {
		t.Fatalf("ErrorCount = %d, want 1", stats.ErrorCount)
	}
	if stats.TotalDuration != 45*time.Millisecond {
		t.Fatalf("TotalDuration = %v, want 45ms", stats.TotalDuration)
	}
	if stats.AverageDuration() != 15*time.Millisecond {
		t.Fatalf("AverageDuration = %v, want 15ms", stats.AverageDuration())
	}
}

func TestToMapShape(t *testing.T) {
	c := New()
	c.Record("print", time.Millisecond, false)

	m := c.ToMap()
	entry, ok := m["print"].(map[string]any)
	if !ok {
		t.Fatalf("ToMap()[print] = %v (%T), want map[string]any", m["print"], m["print"])
	}
	if entry["count"].(int64) != 1 {
		t.Fatalf("count = %v, want 1", entry["count"])
	}
}

func TestEmptyCollector(t *testing.T) {
	c := New()
	if len(c.ToMap()) != 0 {
		t.Fatal("a fresh Collector should report no opcodes")
	}
}
