package tiercache

import (
	"github.com/hupe1980/tiercache/devmem"
	"github.com/hupe1980/tiercache/hostmem"
	"github.com/hupe1980/tiercache/plan"
	"github.com/hupe1980/tiercache/store"
)

// Re-exported sentinels so callers can match the public error contract
// without importing the subpackages.
//
// Configuration errors (invalid ratio, invalid seek offset, corrupt
// bookkeeping) are fatal and never retried; they indicate a programming or
// configuration mistake rather than a transient condition. Budget errors are
// capacity failures, equally fatal to the current pass.
var (
	// ErrInvalidHostRatio reports a cache host ratio outside [0, 1].
	ErrInvalidHostRatio = plan.ErrInvalidHostRatio

	// ErrInvalidOffset reports a Seek offset that is not an exact slot
	// boundary.
	ErrInvalidOffset = store.ErrInvalidOffset

	// ErrStoreCorrupt reports inconsistent tier bookkeeping.
	ErrStoreCorrupt = store.ErrCorrupt

	// ErrDeviceBudgetExceeded reports device memory budget exhaustion.
	ErrDeviceBudgetExceeded = devmem.ErrBudgetExceeded

	// ErrHostBudgetExceeded reports host memory budget exhaustion.
	ErrHostBudgetExceeded = hostmem.ErrBudgetExceeded
)
