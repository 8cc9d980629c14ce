// Package testutil provides deterministic helpers for cache tests: a
// seeded, thread-safe RNG and generators for original pages with known
// content.
package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/tiercache/page"
	"github.com/hupe1980/tiercache/plan"
)

// RNG encapsulates a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	r.rand.Read(b)
	return b
}

// CompressibleBytes returns n bytes drawn from a small alphabet with long
// runs, so block codecs achieve a real compression ratio.
func (r *RNG) CompressibleBytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	for i := 0; i < n; {
		run := 16 + r.rand.Intn(48)
		if i+run > n {
			run = n - i
		}
		v := byte(r.rand.Intn(4))
		for j := 0; j < run; j++ {
			b[i+j] = v
		}
		i += run
	}
	return b
}

// MakePages builds original pages with the given byte sizes. Page i carries
// rows sizes[i]/stride (at least 1), sequential base row ids, and
// deterministic compressible content. All pages share one Cuts pointer.
func MakePages(rng *RNG, sizes []int) []*page.OriginalPage {
	cuts := &page.Cuts{
		Values: []float32{0.5, 1.5, 2.5},
		Ptrs:   []uint32{0, 1, 2, 3},
	}

	const stride = 8
	pages := make([]*page.OriginalPage, len(sizes))
	baseRow := 0
	for i, n := range sizes {
		rows := n / stride
		if rows < 1 {
			rows = 1
		}
		pages[i] = &page.OriginalPage{
			Data:       rng.CompressibleBytes(n),
			Rows:       rows,
			RowStride:  stride,
			SymbolBits: 8,
			BaseRowID:  baseRow,
			Cuts:       cuts,
		}
		baseRow += rows
	}
	return pages
}

// BatchInfos derives the planner input from a set of original pages.
func BatchInfos(pages []*page.OriginalPage) []plan.BatchInfo {
	infos := make([]plan.BatchInfo, len(pages))
	for i, p := range pages {
		infos[i] = plan.BatchInfo{Rows: p.Rows, Bytes: p.SizeBytes()}
	}
	return infos
}

// Concat returns the concatenation of the pages' raw buffers, the byte
// layout a full replay must reproduce.
func Concat(pages []*page.OriginalPage) []byte {
	var out []byte
	for _, p := range pages {
		out = append(out, p.Data...)
	}
	return out
}
