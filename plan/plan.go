// Package plan computes the cache page layout for a tiered external-memory
// cache: how consecutive original batches are grouped into larger cache
// pages, and how each cache page is split across the device, host, and
// compressed-host tiers.
//
// Planning is a pure function of the batch size metadata and runs exactly
// once, before the first write pass.
package plan

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultHWDecompRatio is the fraction of the host portion of a cache
	// page that is stored compressed when a hardware decompression engine is
	// available. The value is inherited from the reference implementation
	// and has not been validated by profiling; override it via
	// Options.HWDecompRatio.
	DefaultHWDecompRatio = 0.4

	// DefaultMinPageBytesFloor is the smallest min-cache-page threshold the
	// default auto policy will pick.
	DefaultMinPageBytesFloor = 32 << 20

	// Auto requests policy resolution for Options.HostRatio or
	// Options.MinCachePageBytes.
	Auto = -1
)

// ErrInvalidHostRatio is returned when a resolved cache host ratio falls
// outside [0, 1]. This is a configuration mistake, never retried.
var ErrInvalidHostRatio = errors.New("plan: cache host ratio outside [0,1]")

// BatchInfo describes one original batch: its row count and the byte size of
// its packed histogram-index buffer.
type BatchInfo struct {
	Rows  int
	Bytes int64
}

// AutoPolicy resolves "auto" planning knobs from the total byte volume of
// the dataset and whether it is a validation set. It is an injectable
// collaborator: callers with real device-topology knowledge should supply
// their own.
type AutoPolicy func(totalBytes int64, validation bool) (hostRatio float64, minPageBytes int64)

// DefaultAutoPolicy keeps validation sets entirely host-resident (they are
// replayed rarely) and splits training sets evenly, with cache pages of at
// least totalBytes/32, floored at DefaultMinPageBytesFloor.
func DefaultAutoPolicy(totalBytes int64, validation bool) (float64, int64) {
	minPage := totalBytes / 32
	if minPage < DefaultMinPageBytesFloor {
		minPage = DefaultMinPageBytesFloor
	}
	if validation {
		return 1.0, minPage
	}
	return 0.5, minPage
}

// Options configures planning. Zero values mean: HostRatio 0 (all device),
// MinCachePageBytes 0 (no concatenation, one slot per batch). Pass Auto to
// resolve either from the policy.
type Options struct {
	HostRatio         float64
	MinCachePageBytes int64

	// HWDecompRatio is the compressed fraction of the host portion. 0 means
	// DefaultHWDecompRatio.
	HWDecompRatio float64

	// AllowDecompFallback permits a silent software decompression path when
	// the hardware engine is unavailable or fails.
	AllowDecompFallback bool

	// Validation marks the dataset as a validation set for the auto policy.
	Validation bool

	// Policy resolves Auto knobs. nil means DefaultAutoPolicy.
	Policy AutoPolicy
}

// CacheInfo is the planner output: the batch-to-slot mapping plus the scalar
// split configuration shared by the writer and every reader.
type CacheInfo struct {
	// Mapping assigns each original batch index to a cache slot index. It is
	// monotonically non-decreasing and covers every batch exactly once.
	Mapping []int

	// BufferBytes and BufferRows hold the concatenated byte and row totals
	// per cache slot.
	BufferBytes []int64
	BufferRows  []int

	// HostRatio is the fraction of each cache page placed on the host side
	// (plain plus compressed), in [0, 1].
	HostRatio float64

	// HWDecompRatio is the fraction of the host portion stored compressed
	// when hardware decompression is available.
	HWDecompRatio float64

	// AllowDecompFallback permits the software decompression path.
	AllowDecompFallback bool

	// NoConcat indicates one cache slot per original batch: the writer
	// commits every page directly without concatenation.
	NoConcat bool

	// TotalBytes is the byte size of the whole cache.
	TotalBytes int64
}

// Slots returns the number of cache slots.
func (ci *CacheInfo) Slots() int { return len(ci.BufferBytes) }

// CalcCacheMapping greedily accumulates consecutive batches into the current
// slot while the running byte total stays below minCachePageBytes; reaching
// or exceeding the threshold closes the slot. minCachePageBytes <= 0 yields
// the identity mapping (one slot per batch).
//
// The function is pure and deterministic: identical inputs always produce
// the identical mapping.
func CalcCacheMapping(batches []BatchInfo, minCachePageBytes int64) []int {
	mapping := make([]int, len(batches))
	slot := 0
	var run int64
	for i, b := range batches {
		mapping[i] = slot
		run += b.Bytes
		if run >= minCachePageBytes {
			slot++
			run = 0
		}
	}
	return mapping
}

// Plan resolves the options against the batch metadata and returns the
// cache layout.
func Plan(batches []BatchInfo, opts Options) (*CacheInfo, error) {
	if len(batches) == 0 {
		return nil, errors.New("plan: no batches")
	}

	var total int64
	for _, b := range batches {
		total += b.Bytes
	}

	policy := opts.Policy
	if policy == nil {
		policy = DefaultAutoPolicy
	}
	autoRatio, autoMinPage := policy(total, opts.Validation)

	hostRatio := opts.HostRatio
	if hostRatio == Auto {
		hostRatio = autoRatio
	}
	minPage := opts.MinCachePageBytes
	if minPage == Auto {
		minPage = autoMinPage
	}
	hwRatio := opts.HWDecompRatio
	if hwRatio == 0 {
		hwRatio = DefaultHWDecompRatio
	}

	if hostRatio < 0 || hostRatio > 1 || math.IsNaN(hostRatio) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHostRatio, hostRatio)
	}
	if hwRatio < 0 || hwRatio > 1 {
		return nil, fmt.Errorf("plan: hw decompression ratio outside [0,1]: %v", hwRatio)
	}

	mapping := CalcCacheMapping(batches, minPage)

	slots := mapping[len(mapping)-1] + 1
	info := &CacheInfo{
		Mapping:             mapping,
		BufferBytes:         make([]int64, slots),
		BufferRows:          make([]int, slots),
		HostRatio:           hostRatio,
		HWDecompRatio:       hwRatio,
		AllowDecompFallback: opts.AllowDecompFallback,
		NoConcat:            minPage <= 0,
		TotalBytes:          total,
	}
	for i, b := range batches {
		info.BufferBytes[mapping[i]] += b.Bytes
		info.BufferRows[mapping[i]] += b.Rows
	}

	// A single slot gains nothing from host placement; keep it entirely in
	// the fast tier.
	if slots == 1 {
		info.HostRatio = 0
	}

	return info, nil
}
