package hamtree

import (
	"sync/atomic"
	"time"
)

// SaveStats describes how one push was written to the stash.
type SaveStats struct {
	Nodes        int // in-memory nodes written or deduplicated
	Deduplicated int // nodes that reused a position from the same save
	Records      int // records appended
}

// MetricsCollector defines an interface for collecting operational metrics.
// See package prommetrics for a Prometheus implementation.
type MetricsCollector interface {
	// RecordPush is called after each push. err is nil if successful.
	RecordPush(duration time.Duration, err error)

	// RecordFind is called after each lookup.
	RecordFind(duration time.Duration, found bool, err error)

	// RecordSave is called after a push was committed to the stash.
	RecordSave(stats SaveStats, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPush(time.Duration, error)       {}
func (NoopMetricsCollector) RecordFind(time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordSave(SaveStats, time.Duration)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	PushCount         atomic.Int64
	PushErrors        atomic.Int64
	PushTotalNanos    atomic.Int64
	FindCount         atomic.Int64
	FindHits          atomic.Int64
	FindErrors        atomic.Int64
	FindTotalNanos    atomic.Int64
	SaveCount         atomic.Int64
	RecordsAppended   atomic.Int64
	NodesDeduplicated atomic.Int64
}

// RecordPush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPush(duration time.Duration, err error) {
	b.PushCount.Add(1)
	b.PushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PushErrors.Add(1)
	}
}

// RecordFind implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFind(duration time.Duration, found bool, err error) {
	b.FindCount.Add(1)
	b.FindTotalNanos.Add(duration.Nanoseconds())
	if found {
		b.FindHits.Add(1)
	}
	if err != nil {
		b.FindErrors.Add(1)
	}
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(stats SaveStats, _ time.Duration) {
	b.SaveCount.Add(1)
	b.RecordsAppended.Add(int64(stats.Records))
	b.NodesDeduplicated.Add(int64(stats.Deduplicated))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PushCount:         b.PushCount.Load(),
		PushErrors:        b.PushErrors.Load(),
		PushAvgNanos:      avg(b.PushTotalNanos.Load(), b.PushCount.Load()),
		FindCount:         b.FindCount.Load(),
		FindHits:          b.FindHits.Load(),
		FindErrors:        b.FindErrors.Load(),
		FindAvgNanos:      avg(b.FindTotalNanos.Load(), b.FindCount.Load()),
		SaveCount:         b.SaveCount.Load(),
		RecordsAppended:   b.RecordsAppended.Load(),
		NodesDeduplicated: b.NodesDeduplicated.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PushCount         int64
	PushErrors        int64
	PushAvgNanos      int64
	FindCount         int64
	FindHits          int64
	FindErrors        int64
	FindAvgNanos      int64
	SaveCount         int64
	RecordsAppended   int64
	NodesDeduplicated int64
}
