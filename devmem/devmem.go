// Package devmem models the accelerator-resident side of the cache: a
// budgeted allocator for device buffers and a small pool of in-order
// asynchronous execution queues used to overlap page reconstruction with
// unrelated computation.
package devmem

import (
	"context"
	"errors"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/semaphore"
)

// Alignment is the byte alignment of every device allocation (matches the
// widest vector load the consumer issues).
const Alignment = 64

// ErrBudgetExceeded is returned by TryAlloc when the device budget cannot
// cover the request.
var ErrBudgetExceeded = errors.New("devmem: device memory budget exceeded")

// AllocAligned allocates a byte slice of the given size whose first byte is
// Alignment-aligned. The underlying array is kept alive by the returned
// slice.
func AllocAligned(size int64) []byte {
	if size <= 0 {
		return nil
	}

	buf := make([]byte, size+Alignment)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	offset := (Alignment - (addr & (Alignment - 1))) & (Alignment - 1)
	return buf[offset : offset+uintptr(size)]
}

// Pool is a device-memory allocator with a hard byte budget. A budget of 0
// disables enforcement (tracking only).
//
// Allocation blocks until budget is available; capacity failures are
// surfaced only through context cancellation or TryAlloc. Releasing is
// byte-count based because committed cache slots retag byte ranges of a
// buffer rather than freeing whole allocations.
type Pool struct {
	sem  *semaphore.Weighted // nil if unlimited
	used atomic.Int64
}

// NewPool creates a device pool with the given byte budget (0 = unlimited).
func NewPool(budgetBytes int64) *Pool {
	p := &Pool{}
	if budgetBytes > 0 {
		p.sem = semaphore.NewWeighted(budgetBytes)
	}
	return p
}

// Alloc reserves size bytes of budget and returns an aligned device buffer.
// Blocks until budget is available or ctx is canceled.
func (p *Pool) Alloc(ctx context.Context, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, size); err != nil {
			return nil, err
		}
	}
	p.used.Add(size)
	return AllocAligned(size), nil
}

// TryAlloc is the non-blocking variant of Alloc.
func (p *Pool) TryAlloc(size int64) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	if p.sem != nil && !p.sem.TryAcquire(size) {
		return nil, ErrBudgetExceeded
	}
	p.used.Add(size)
	return AllocAligned(size), nil
}

// Release returns size bytes to the budget.
func (p *Pool) Release(size int64) {
	if size <= 0 {
		return
	}
	if p.sem != nil {
		p.sem.Release(size)
	}
	p.used.Add(-size)
}

// Used returns the bytes currently accounted against the budget.
func (p *Pool) Used() int64 { return p.used.Load() }
