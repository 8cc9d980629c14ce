package tiercache

import (
	"github.com/hupe1980/tiercache/compress"
	"github.com/hupe1980/tiercache/devmem"
	"github.com/hupe1980/tiercache/plan"
)

type options struct {
	hostRatio           float64
	minCachePageBytes   int64
	hwDecompRatio       float64
	allowDecompFallback bool
	validation          bool
	policy              plan.AutoPolicy

	codec     compress.Codec
	chunkSize int

	streams            int
	ioLimitBytesPerSec int64

	deviceBudget int64
	hostBudget   int64

	logger  *Logger
	metrics MetricsCollector
}

// Option configures cache construction.
type Option func(*options)

// WithHostRatio sets the fraction of each cache page placed on the host side
// (plain plus compressed), in [0, 1]. Pass plan.Auto to resolve it from the
// auto policy. The default is plan.Auto.
func WithHostRatio(ratio float64) Option {
	return func(o *options) { o.hostRatio = ratio }
}

// WithMinCachePageBytes sets the threshold at which an accumulating cache
// page is closed. 0 disables concatenation (one slot per original batch);
// plan.Auto resolves it from the auto policy. The default is plan.Auto.
func WithMinCachePageBytes(n int64) Option {
	return func(o *options) { o.minCachePageBytes = n }
}

// WithHWDecompRatio overrides plan.DefaultHWDecompRatio, the compressed
// fraction of the host portion used when hardware decompression is
// available.
func WithHWDecompRatio(ratio float64) Option {
	return func(o *options) { o.hwDecompRatio = ratio }
}

// WithAllowDecompFallback permits a silent software decompression path when
// the hardware engine fails mid-read. Without it such failures are fatal.
func WithAllowDecompFallback(allow bool) Option {
	return func(o *options) { o.allowDecompFallback = allow }
}

// WithValidation marks the dataset as a validation set for the auto policy.
func WithValidation(validation bool) Option {
	return func(o *options) { o.validation = validation }
}

// WithAutoPolicy replaces the policy that resolves plan.Auto knobs.
func WithAutoPolicy(policy plan.AutoPolicy) Option {
	return func(o *options) { o.policy = policy }
}

// WithCodec sets the compression service for the compressed tier. The
// default is the LZ4 codec with its hardware engine reported available; a
// codec whose Available reports false disables the compressed tier.
func WithCodec(c compress.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithChunkSize sets the decompressed chunk granularity of the compressed
// tier. The default is compress.DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithStreams sets the number of asynchronous execution streams used to
// overlap decompression across slots. The default is devmem.DefaultStreams.
func WithStreams(n int) Option {
	return func(o *options) { o.streams = n }
}

// WithThroughputLimit caps the aggregate decompression throughput in bytes
// per second. 0 (the default) means unlimited.
func WithThroughputLimit(bytesPerSec int64) Option {
	return func(o *options) { o.ioLimitBytesPerSec = bytesPerSec }
}

// WithDeviceBudget sets a hard byte budget for device-resident memory.
// 0 (the default) only tracks usage.
func WithDeviceBudget(bytes int64) Option {
	return func(o *options) { o.deviceBudget = bytes }
}

// WithHostBudget sets a hard byte budget for pinned host memory. 0 (the
// default) only tracks usage.
func WithHostBudget(bytes int64) Option {
	return func(o *options) { o.hostBudget = bytes }
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. The default is a no-op.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func defaultOptions() options {
	return options{
		hostRatio:         plan.Auto,
		minCachePageBytes: plan.Auto,
		codec:             compress.NewLZ4Codec(),
		streams:           devmem.DefaultStreams,
		logger:            NoopLogger(),
		metrics:           NoopMetricsCollector{},
	}
}
