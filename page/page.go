// Package page defines the page types exchanged between the upstream batch
// iterator, the tiered cache, and the downstream training loop.
package page

// Cuts holds the histogram cut boundaries shared by every page of a dataset.
// The cache never interprets them; it only carries the pointer through so a
// reconstructed page is self-describing.
type Cuts struct {
	Values   []float32
	Ptrs     []uint32
	MinViews []float32
}

// OriginalPage is one batch's histogram-bucketed feature matrix as produced
// by the upstream iterator, before any cache grouping. It is immutable and
// consumed exactly once by a cache writer.
type OriginalPage struct {
	// Data is the raw packed buffer of histogram bucket indices.
	Data []byte
	// Rows is the number of rows in the batch.
	Rows int
	// RowStride is the number of symbols per row.
	RowStride int
	// SymbolBits is the bit-width used to pack bucket indices, fixed per
	// dataset.
	SymbolBits int
	// BaseRowID is the dataset-global id of the first row in the batch.
	BaseRowID int
	// Cuts points at the dataset's feature cut boundaries.
	Cuts *Cuts
}

// SizeBytes returns the byte size of the packed buffer.
func (p *OriginalPage) SizeBytes() int64 { return int64(len(p.Data)) }

// View is a read-only window over a reconstructed page's bytes. The bytes
// are either one contiguous region or two disjoint aliased regions whose
// logical order is Host followed by Device. Consumers must tolerate both
// shapes without materializing a single buffer.
type View struct {
	// Host is the leading byte range resident in host memory. May be nil.
	Host []byte
	// Device is the trailing byte range resident in device memory. May be
	// nil.
	Device []byte
}

// Len returns the logical byte length of the view.
func (v View) Len() int { return len(v.Host) + len(v.Device) }

// Contiguous reports whether the view is backed by a single region.
func (v View) Contiguous() bool { return len(v.Host) == 0 || len(v.Device) == 0 }

// At returns the byte at logical offset i.
func (v View) At(i int) byte {
	if i < len(v.Host) {
		return v.Host[i]
	}
	return v.Device[i-len(v.Host)]
}

// AppendTo appends the full logical content to dst and returns it. Intended
// for consumers (and tests) that need a contiguous copy.
func (v View) AppendTo(dst []byte) []byte {
	dst = append(dst, v.Host...)
	return append(dst, v.Device...)
}

// Page is a reconstructed cache page handed to the downstream consumer. The
// view aliases cache-owned memory and must be treated as read-only; it stays
// valid for the lifetime of the cache.
type Page struct {
	View View

	Rows       int
	RowStride  int
	SymbolBits int
	BaseRowID  int
	Cuts       *Cuts

	release func()
}

// SetReleaseFunc attaches the cleanup that returns transient memory backing
// a materialized page. Used by cache backends; consumers only call Release.
func (p *Page) SetReleaseFunc(f func()) { p.release = f }

// Release returns any transient device memory backing a materialized page
// to its pool. Safe to call more than once and on aliased pages (no-op).
func (p *Page) Release() {
	if p.release != nil {
		p.release()
		p.release = nil
	}
}
