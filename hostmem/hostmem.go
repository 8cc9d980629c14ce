// Package hostmem provides the pinned host-memory tier of the cache. Buffers
// are locked into physical memory where the platform allows it so that
// host-to-device copies run at full DMA speed; when locking is denied (for
// example by RLIMIT_MEMLOCK) the pool degrades to plain allocations and only
// the accounting remains.
package hostmem

import (
	"errors"
	"sync"
)

// ErrBudgetExceeded is returned when an allocation would exceed the pool's
// byte budget.
var ErrBudgetExceeded = errors.New("hostmem: host memory budget exceeded")

// Pool is a byte-budgeted allocator for pinned host buffers. A budget of 0
// disables enforcement (tracking only).
type Pool struct {
	mu     sync.Mutex
	total  int64
	used   int64
	pinned int64
}

// NewPool creates a host pool with the given byte budget (0 = unlimited).
func NewPool(budgetBytes int64) *Pool {
	return &Pool{total: budgetBytes}
}

// Alloc returns a host buffer of the given size, pinned when the platform
// permits. Fails fast on budget exhaustion; there is no blocking variant
// because the write pass sizes every allocation up front.
func (p *Pool) Alloc(size int64) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 && p.used+size > p.total {
		return nil, ErrBudgetExceeded
	}

	buf := make([]byte, size)
	p.used += size
	if lock(buf) == nil {
		p.pinned += size
	}
	return buf, nil
}

// Free unpins the buffer and returns its bytes to the budget. Passing a
// slice not obtained from Alloc corrupts the accounting.
func (p *Pool) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if unlock(buf) == nil && p.pinned >= int64(len(buf)) {
		p.pinned -= int64(len(buf))
	}
	p.used -= int64(len(buf))
}

// Used returns the bytes currently allocated from the pool.
func (p *Pool) Used() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Pinned returns the bytes currently locked into physical memory.
func (p *Pool) Pinned() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pinned
}
