package store

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/tiercache/page"
)

// Writer consumes original pages in iteration order, concatenates them into
// the planned cache slots, and commits each slot by splitting its buffer
// across the tiers. One instance per write pass; the writer mutates the
// shared store without locking and relies on single-threaded-per-pass usage.
type Writer struct {
	s   *TieredStore
	ptr int // next slot index expected
}

// NewWriter returns a writer for one write pass over the store.
func (s *TieredStore) NewWriter() *Writer { return &Writer{s: s} }

// Seek positions the writer at the slot whose preceding committed byte total
// equals off exactly, or one past the last committed slot when off equals
// the total cache size. Any other offset is a fatal configuration error.
// Used only when resuming a pass that is not the first.
func (w *Writer) Seek(off int64) error {
	k, err := w.s.seekSlot(off)
	if err != nil {
		return err
	}
	w.ptr = k
	return nil
}

// Slot returns the next slot index the writer expects.
func (w *Writer) Slot() int { return w.ptr }

// Write appends one original page to the cache and reports whether it opened
// a new slot (the caller uses this to decide whether to advance the
// underlying source iterator). The final page overall force-commits the open
// slot.
func (w *Writer) Write(ctx context.Context, p *page.OriginalPage) (newSlot bool, err error) {
	s := w.s
	if len(s.sizesOrig) >= len(s.info.Mapping) {
		return false, fmt.Errorf("%w: page %d of %d", ErrTooManyPages, len(s.sizesOrig), len(s.info.Mapping))
	}

	s.sizesOrig = append(s.sizesOrig, p.SizeBytes())
	origIdx := len(s.sizesOrig) - 1
	cacheIdx := s.info.Mapping[origIdx]
	isNew := cacheIdx == s.Len()
	isLast := origIdx+1 == len(s.info.Mapping)

	if s.info.NoConcat {
		// One cache slot per original batch: commit the page directly as its
		// own slot.
		buf, err := s.dev.Alloc(ctx, p.SizeBytes())
		if err != nil {
			return false, err
		}
		copy(buf, p.Data)
		if err := s.appendSlot(cacheIdx, buf, metaOf(p)); err != nil {
			return false, err
		}
		s.offsets[cacheIdx] = p.SizeBytes()
		if err := s.commitBack(); err != nil {
			return false, err
		}
		w.ptr = cacheIdx + 1
		return true, nil
	}

	if isNew {
		if s.Len() > s.committed {
			if err := s.commitBack(); err != nil {
				return false, err
			}
		}
		want := s.info.BufferBytes[cacheIdx]
		if p.SizeBytes() > want {
			return false, fmt.Errorf("%w: page %d (%d bytes) exceeds slot %d buffer (%d bytes)",
				ErrCorrupt, origIdx, p.SizeBytes(), cacheIdx, want)
		}
		buf, err := s.dev.Alloc(ctx, want)
		if err != nil {
			return false, err
		}
		copy(buf, p.Data)
		if err := s.appendSlot(cacheIdx, buf, metaOf(p)); err != nil {
			return false, err
		}
		s.offsets[cacheIdx] = p.SizeBytes()
		w.ptr = cacheIdx
	} else {
		if cacheIdx != s.Len()-1 {
			return false, fmt.Errorf("%w: page %d assigned to slot %d while slot %d is open",
				ErrCorrupt, origIdx, cacheIdx, s.Len()-1)
		}
		buf, fill := s.Back()
		if fill+p.SizeBytes() > int64(len(buf)) {
			return false, fmt.Errorf("%w: page %d overflows slot %d (%d+%d > %d bytes)",
				ErrCorrupt, origIdx, cacheIdx, fill, p.SizeBytes(), len(buf))
		}
		copy(buf[fill:], p.Data)
		s.offsets[cacheIdx] += p.SizeBytes()
		s.meta[cacheIdx].rows += p.Rows
	}

	if isLast {
		if err := s.commitBack(); err != nil {
			return false, err
		}
		w.ptr = s.Len()
	}
	return isNew, nil
}

func metaOf(p *page.OriginalPage) slotMeta {
	return slotMeta{
		rows:       p.Rows,
		rowStride:  p.RowStride,
		symbolBits: p.SymbolBits,
		baseRowID:  p.BaseRowID,
		cuts:       p.Cuts,
	}
}

// commitBack splits the fully concatenated device buffer of the most
// recently appended slot into its tiers. Irreversible: the slot is read-only
// afterwards.
func (s *TieredStore) commitBack() error {
	k := s.Len() - 1
	if k < s.committed {
		return nil // nothing open
	}

	buf := s.dPages[k]
	n := s.offsets[k]
	if n != int64(len(buf)) || n != s.info.BufferBytes[k] {
		return fmt.Errorf("%w: slot %d committed with %d of %d bytes", ErrCorrupt, k, n, s.info.BufferBytes[k])
	}

	// Exact 0.0/1.0 short-circuits avoid float drift at the ratio extremes;
	// a single-tier slot also gains nothing from compression-splitting.
	ratio := s.info.HostRatio
	var nHost, nComp int64
	switch {
	case ratio <= 0:
		// Whole slot stays device-resident.
	case ratio >= 1:
		nHost = n
	default:
		nHost = int64(math.Round(float64(n) * ratio))
		if s.codec != nil && s.codec.Available() {
			nComp = int64(math.Round(float64(nHost) * s.info.HWDecompRatio))
		}
	}
	nPlain := nHost - nComp
	if nPlain+nComp+(n-nHost) != n {
		return fmt.Errorf("%w: slot %d split %d+%d+%d != %d", ErrCorrupt, k, nPlain, nComp, n-nHost, n)
	}

	switch {
	case nHost == 0:
		s.residency[k] = ResidencyDevice

	case nHost == n && nComp == 0:
		hbuf, err := s.host.Alloc(n)
		if err != nil {
			return err
		}
		copy(hbuf, buf)
		s.hPages[k] = hbuf
		s.dPages[k] = nil
		s.dev.Release(n)
		s.residency[k] = ResidencyHost

	default:
		hbuf, err := s.host.Alloc(nPlain)
		if err != nil {
			return err
		}
		copy(hbuf, buf[:nPlain])
		if nComp > 0 {
			blob, err := s.codec.Compress(buf[nPlain:nHost], s.chunk)
			if err != nil {
				return err
			}
			s.cPages[k] = blob
		}
		s.hPages[k] = hbuf
		// The trailing bytes are retagged as the device region, no copy.
		s.dPages[k] = buf[nHost:n:n]
		s.dev.Release(nHost)
		s.residency[k] = ResidencySplit
	}

	s.slotBytes[k] = n
	s.committed = k + 1
	if err := s.checkLens(); err != nil {
		return err
	}

	s.metrics.RecordCommit(k, nPlain, s.cPages[k].SizeBytes(), n-nHost)
	s.log.Debug("slot committed",
		"slot", k,
		"bytes", n,
		"host_bytes", nPlain,
		"compressed_bytes", s.cPages[k].SizeBytes(),
		"device_bytes", n-nHost,
		"residency", s.residency[k].String(),
	)
	return nil
}
