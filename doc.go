// Package tiercache provides a tiered external-memory page cache for
// histogram-compressed training matrices that do not fit in fast device
// memory.
//
// The cache accepts a sequence of per-batch compressed feature matrices
// ("original pages") from an upstream iterator, repartitions them into fewer,
// larger cache pages, and splits each cache page across three storage tiers:
// accelerator-resident memory, pinned host memory, and a compressed host
// region reconstructed on demand. Later passes read the pages back in order,
// reconstructing each into a contiguous buffer (or a zero-copy two-residency
// view) for the training loop, with decompression overlapped across slots on
// a small pool of asynchronous execution streams.
//
// # Quick Start
//
//	batches := []plan.BatchInfo{{Rows: 4096, Bytes: 1 << 20}, ...}
//
//	cache, _ := tiercache.New(batches,
//	    tiercache.WithHostRatio(0.5),
//	    tiercache.WithMinCachePageBytes(64<<20),
//	)
//	defer cache.Close()
//
//	// Build pass: one writer, pages in iteration order.
//	w := cache.NewWriter()
//	for _, p := range pages {
//	    w.Write(ctx, p)
//	}
//
//	// Replay passes: independent readers, concurrent if desired.
//	r := cache.NewReader()
//	for ok := true; ok; ok = r.Advance() {
//	    var out page.Page
//	    r.Read(ctx, &out, false)
//	    consume(&out)
//	    out.Release()
//	}
//
// # Lifecycle
//
// Planning runs once, before the first write. The write pass runs once and
// commits each slot irreversibly; committed slots are immutable for the life
// of the cache, which is what makes concurrent readers safe without locking.
// There is exactly one writer per write pass and no cancellation: once a
// read or write begins it runs to completion.
package tiercache
