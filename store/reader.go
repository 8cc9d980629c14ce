package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/tiercache/compress"
	"github.com/hupe1980/tiercache/devmem"
	"github.com/hupe1980/tiercache/page"
)

// Reader serves committed slots back in order, reconstructing each into a
// page for the training loop. One instance per read pass; multiple readers
// may run concurrently over the same store because committed slots are never
// mutated again.
//
// The cursor never auto-increments: the caller advances it between reads via
// Advance, and Seek is the only way to reposition.
type Reader struct {
	s       *TieredStore
	streams *devmem.StreamPool
	ptr     int
}

// NewReader returns a reader for one read pass. Asynchronous decompression
// is dispatched round-robin onto the given stream pool so reconstructions of
// different slots overlap.
func (s *TieredStore) NewReader(streams *devmem.StreamPool) *Reader {
	return &Reader{s: s, streams: streams}
}

// Seek positions the reader at the slot whose preceding byte total equals
// off exactly; semantics are identical to Writer.Seek.
func (r *Reader) Seek(off int64) error {
	k, err := r.s.seekSlot(off)
	if err != nil {
		return err
	}
	r.ptr = k
	return nil
}

// Slot returns the current slot index.
func (r *Reader) Slot() int { return r.ptr }

// Advance moves the cursor to the next slot and reports whether it still
// addresses a committed slot.
func (r *Reader) Advance() bool {
	r.ptr++
	return r.ptr < r.s.committed
}

// Read reconstructs the slot under the cursor into out. With materialize
// set, or whenever the slot has a compressed region, the page is rebuilt
// into one fresh contiguous device buffer; otherwise the page aliases the
// committed tiers with no copy, possibly as two disjoint regions.
//
// A materialized page borrows from the device budget; the consumer must call
// out.Release when done with it.
func (r *Reader) Read(ctx context.Context, out *page.Page, materialize bool) error {
	start := time.Now()
	materialized, err := r.read(ctx, out, materialize)
	r.s.metrics.RecordRead(r.ptr, materialized, time.Since(start), err)
	return err
}

func (r *Reader) read(ctx context.Context, out *page.Page, materialize bool) (bool, error) {
	s := r.s
	host, dev, blob, err := s.At(r.ptr)
	if err != nil {
		return false, err
	}
	res := s.residency[r.ptr]

	switch {
	case res == ResidencyDevice:
		// Entirely fast-tier: alias the device buffer, no copy.
		out.View = page.View{Device: dev}
		out.SetReleaseFunc(nil)

	case materialize || blob != nil:
		// A compressed region cannot be referenced directly; rebuild the
		// slot into one contiguous device buffer. The three sub-copies
		// target disjoint, pre-computed ranges.
		total := s.slotBytes[r.ptr]
		buf, err := s.dev.Alloc(ctx, total)
		if err != nil {
			return true, err
		}
		release := func() { s.dev.Release(total) }

		copy(buf, host)

		var ev *devmem.Event
		var compDst []byte
		if blob != nil {
			compOff := int64(len(host))
			compDst = buf[compOff : compOff+blob.DecompressedSize()]
			ev = compress.DecompressAsync(s.codec, r.streams.Next(), blob, compDst)
		}

		copy(buf[total-int64(len(dev)):], dev)

		if ev != nil {
			if werr := ev.Wait(ctx); werr != nil {
				if ctx.Err() != nil || !s.info.AllowDecompFallback {
					release()
					return true, werr
				}
				// Silent software fallback per configuration.
				s.metrics.RecordDecompFallback(r.ptr)
				s.log.Warn("async decompression failed, using software path",
					"slot", r.ptr, "error", werr)
				if ferr := s.codec.Decompress(blob, compDst); ferr != nil {
					release()
					return true, fmt.Errorf("store: slot %d decompression: %w", r.ptr, ferr)
				}
			}
		}

		out.View = page.View{Device: buf}
		out.SetReleaseFunc(release)
		r.copyMeta(out)
		return true, nil

	default:
		// No compressed region and not forced: alias the host and device
		// regions as a two-residency view, no copy.
		out.View = page.View{Host: host, Device: dev}
		out.SetReleaseFunc(nil)
	}

	r.copyMeta(out)
	return false, nil
}

func (r *Reader) copyMeta(out *page.Page) {
	m := r.s.meta[r.ptr]
	out.Rows = m.rows
	out.RowStride = m.rowStride
	out.SymbolBits = m.symbolBits
	out.BaseRowID = m.baseRowID
	out.Cuts = m.cuts
}
