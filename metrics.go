package tiercache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus. It satisfies store.Metrics structurally.
type MetricsCollector interface {
	// RecordCommit is called once per committed slot with the byte split
	// across the three tiers.
	RecordCommit(slot int, hostBytes, compressedBytes, deviceBytes int64)

	// RecordRead is called after each page reconstruction. materialized is
	// true when the page was rebuilt into a fresh contiguous buffer rather
	// than aliased.
	RecordRead(slot int, materialized bool, duration time.Duration, err error)

	// RecordDecompFallback is called when hardware decompression failed and
	// the software path was used instead.
	RecordDecompFallback(slot int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(int, int64, int64, int64)      {}
func (NoopMetricsCollector) RecordRead(int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordDecompFallback(int)                   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CommitCount     atomic.Int64
	HostBytes       atomic.Int64
	CompressedBytes atomic.Int64
	DeviceBytes     atomic.Int64

	ReadCount         atomic.Int64
	ReadErrors        atomic.Int64
	MaterializedReads atomic.Int64
	ReadTotalNanos    atomic.Int64

	DecompFallbacks atomic.Int64
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(_ int, hostBytes, compressedBytes, deviceBytes int64) {
	b.CommitCount.Add(1)
	b.HostBytes.Add(hostBytes)
	b.CompressedBytes.Add(compressedBytes)
	b.DeviceBytes.Add(deviceBytes)
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(_ int, materialized bool, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if materialized {
		b.MaterializedReads.Add(1)
	}
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordDecompFallback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDecompFallback(int) {
	b.DecompFallbacks.Add(1)
}
