// Package store implements the tiered page store at the heart of the
// external-memory cache: per cache slot it owns three co-indexed regions
// (device-resident, host-resident, and compressed-host-resident), the writer
// that concatenates original pages into slots and splits them at commit, and
// the reader that reconstructs pages for the training loop.
//
// The store is mutated by exactly one writer during the build pass and is
// immutable afterwards, which is what makes concurrent readers safe without
// locking.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/tiercache/compress"
	"github.com/hupe1980/tiercache/devmem"
	"github.com/hupe1980/tiercache/hostmem"
	"github.com/hupe1980/tiercache/page"
	"github.com/hupe1980/tiercache/plan"
)

var (
	// ErrInvalidOffset is returned by Seek when the byte offset does not
	// fall exactly on a committed slot boundary.
	ErrInvalidOffset = errors.New("store: seek offset is not a slot boundary")

	// ErrOutOfRange is returned by At for a slot index with no committed
	// slot.
	ErrOutOfRange = errors.New("store: slot index out of range")

	// ErrCorrupt indicates inconsistent tier bookkeeping: mismatched vector
	// lengths or a page assigned to the wrong slot. Always a programming or
	// configuration mistake, never retried.
	ErrCorrupt = errors.New("store: tier bookkeeping corrupt")

	// ErrTooManyPages is returned when more original pages are written than
	// the plan accounted for.
	ErrTooManyPages = errors.New("store: more pages written than planned")
)

// Residency tags how a committed slot's bytes are placed, selected once at
// commit time so readers never infer placement from empty-span checks.
type Residency uint8

const (
	// ResidencyDevice means the whole slot is device-resident.
	ResidencyDevice Residency = iota
	// ResidencyHost means the whole slot is plain host-resident.
	ResidencyHost
	// ResidencySplit means the slot spans host, compressed, and device
	// ranges (any of which may be empty).
	ResidencySplit
)

// String returns the residency name.
func (r Residency) String() string {
	switch r {
	case ResidencyDevice:
		return "device"
	case ResidencyHost:
		return "host"
	case ResidencySplit:
		return "split"
	default:
		return fmt.Sprintf("residency(%d)", uint8(r))
	}
}

// Metrics receives store-level observations. The root package's
// MetricsCollector satisfies it.
type Metrics interface {
	RecordCommit(slot int, hostBytes, compressedBytes, deviceBytes int64)
	RecordRead(slot int, materialized bool, duration time.Duration, err error)
	RecordDecompFallback(slot int)
}

type nopMetrics struct{}

func (nopMetrics) RecordCommit(int, int64, int64, int64)      {}
func (nopMetrics) RecordRead(int, bool, time.Duration, error) {}
func (nopMetrics) RecordDecompFallback(int)                   {}

// slotMeta is the page-level metadata carried per slot and copied onto every
// reconstructed page.
type slotMeta struct {
	rows       int
	rowStride  int
	symbolBits int
	baseRowID  int
	cuts       *page.Cuts
}

// Config assembles the collaborators of a TieredStore.
type Config struct {
	Info   *plan.CacheInfo
	Device *devmem.Pool
	Host   *hostmem.Pool

	// Codec is the compression service. nil disables the compressed tier
	// entirely (equivalent to a codec whose engine is unavailable).
	Codec compress.Codec

	// ChunkSize is the decompressed chunk granularity for the compressed
	// tier. 0 means compress.DefaultChunkSize.
	ChunkSize int

	Logger  *slog.Logger
	Metrics Metrics
}

// TieredStore owns the three co-indexed tier vectors plus the byte
// accounting of the cache. All three vectors have equal length after every
// mutating call; a slot index is valid only once all three entries exist.
type TieredStore struct {
	info    *plan.CacheInfo
	dev     *devmem.Pool
	host    *hostmem.Pool
	codec   compress.Codec
	chunk   int
	log     *slog.Logger
	metrics Metrics

	hPages    [][]byte
	dPages    [][]byte
	cPages    []*compress.Blob
	residency []Residency
	meta      []slotMeta
	slotBytes []int64

	// offsets[k] is the fill offset of slot k while it is open; sizesOrig[i]
	// is the pre-grouping byte size of original page i, appended exactly
	// once per page and used to map writes back to the plan's mapping.
	offsets   []int64
	sizesOrig []int64

	committed int
}

// New creates an empty tiered store for the planned layout.
func New(cfg Config) (*TieredStore, error) {
	if cfg.Info == nil {
		return nil, errors.New("store: nil cache info")
	}
	if cfg.Device == nil || cfg.Host == nil {
		return nil, errors.New("store: nil memory pool")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = compress.DefaultChunkSize
	}

	return &TieredStore{
		info:    cfg.Info,
		dev:     cfg.Device,
		host:    cfg.Host,
		codec:   cfg.Codec,
		chunk:   cfg.ChunkSize,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Info returns the planned layout the store was built from.
func (s *TieredStore) Info() *plan.CacheInfo { return s.info }

// Len returns the number of appended slots, including an open one.
func (s *TieredStore) Len() int { return len(s.dPages) }

// Committed returns the number of committed (read-only) slots.
func (s *TieredStore) Committed() int { return s.committed }

// SizeBytes returns the total logical byte size of all committed slots.
func (s *TieredStore) SizeBytes() int64 {
	var total int64
	for k := 0; k < s.committed; k++ {
		total += s.slotBytes[k]
	}
	return total
}

// SlotBytes returns the logical byte size of committed slot k.
func (s *TieredStore) SlotBytes(k int) (int64, error) {
	if k < 0 || k >= s.committed {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, k)
	}
	return s.slotBytes[k], nil
}

// At returns a read-only borrow of all three regions of committed slot k.
func (s *TieredStore) At(k int) (host, device []byte, compressed *compress.Blob, err error) {
	if k < 0 || k >= s.committed {
		return nil, nil, nil, fmt.Errorf("%w: %d", ErrOutOfRange, k)
	}
	return s.hPages[k], s.dPages[k], s.cPages[k], nil
}

// SlotResidency returns the residency tag of committed slot k.
func (s *TieredStore) SlotResidency(k int) (Residency, error) {
	if k < 0 || k >= s.committed {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, k)
	}
	return s.residency[k], nil
}

// Back returns mutable access to the most recently appended slot: its device
// buffer and current fill offset. Only the writer may use it, and only while
// the slot is open.
func (s *TieredStore) Back() (buf []byte, fill int64) {
	k := s.Len() - 1
	if k < 0 {
		return nil, 0
	}
	return s.dPages[k], s.offsets[k]
}

// appendSlot opens slot k: all three tier vectors grow together, with the
// fresh device buffer holding the concatenation in progress.
func (s *TieredStore) appendSlot(k int, buf []byte, m slotMeta) error {
	if k != s.Len() {
		return fmt.Errorf("%w: opening slot %d with %d slots appended", ErrCorrupt, k, s.Len())
	}
	s.hPages = append(s.hPages, nil)
	s.dPages = append(s.dPages, buf)
	s.cPages = append(s.cPages, nil)
	s.residency = append(s.residency, ResidencyDevice)
	s.meta = append(s.meta, m)
	s.slotBytes = append(s.slotBytes, 0)
	s.offsets = append(s.offsets, 0)
	return nil
}

// checkLens verifies the equal-length invariant across the tier vectors.
func (s *TieredStore) checkLens() error {
	n := len(s.hPages)
	if len(s.dPages) != n || len(s.cPages) != n || len(s.residency) != n ||
		len(s.meta) != n || len(s.slotBytes) != n || len(s.offsets) != n {
		return fmt.Errorf("%w: h=%d d=%d c=%d", ErrCorrupt, len(s.hPages), len(s.dPages), len(s.cPages))
	}
	return nil
}

// Close releases every tier's memory back to its pool. The store is
// unusable afterwards. Close is not safe to call while readers are active.
func (s *TieredStore) Close() error {
	for k := range s.dPages {
		s.host.Free(s.hPages[k])
		s.dev.Release(int64(len(s.dPages[k])))
		s.hPages[k] = nil
		s.dPages[k] = nil
		s.cPages[k] = nil
	}
	s.hPages = nil
	s.dPages = nil
	s.cPages = nil
	s.residency = nil
	s.meta = nil
	s.slotBytes = nil
	s.offsets = nil
	s.committed = 0
	return nil
}

// seekSlot maps a byte offset to the slot whose preceding committed total
// equals it exactly, or one past the last committed slot when the offset
// equals the total size.
func (s *TieredStore) seekSlot(off int64) (int, error) {
	var run int64
	for k := 0; k < s.committed; k++ {
		if run == off {
			return k, nil
		}
		run += s.slotBytes[k]
	}
	if run == off {
		return s.committed, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, off)
}
