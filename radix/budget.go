package radix

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrBudgetExceeded = errors.New("radix: memory budget exceeded")
	ErrAllocation     = errors.New("radix: allocation failure")
	ErrCapacity       = errors.New("radix: capacity error")
)

// Budget accounts for the memory the engine allocates. Reserve is called
// before every allocation and must fail instead of letting the allocation
// happen when the bytes are not available.
type Budget interface {
	Reserve(bytes int64) error
	Release(bytes int64)
}

// MemoryBudget is a Budget with an optional hard limit. It is safe for
// concurrent use, so one budget can be shared by several sorters.
type MemoryBudget struct {
	limit int64
	used  atomic.Int64
	peak  atomic.Int64
}

// NewMemoryBudget creates a budget of limit bytes. limit <= 0 is unlimited.
func NewMemoryBudget(limit int64) *MemoryBudget {
	if limit < 0 {
		limit = 0
	}
	return &MemoryBudget{limit: limit}
}

func (b *MemoryBudget) Reserve(bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	for {
		used := b.used.Load()
		next := used + bytes
		if b.limit > 0 && next > b.limit {
			return fmt.Errorf("%w: requested %d bytes with %d of %d in use", ErrBudgetExceeded, bytes, used, b.limit)
		}
		if b.used.CompareAndSwap(used, next) {
			b.observePeak(next)
			return nil
		}
	}
}

func (b *MemoryBudget) Release(bytes int64) {
	if bytes <= 0 {
		return
	}
	b.used.Add(-bytes)
}

func (b *MemoryBudget) observePeak(v int64) {
	for {
		p := b.peak.Load()
		if v <= p || b.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

// Used returns the bytes currently reserved.
func (b *MemoryBudget) Used() int64 { return b.used.Load() }

// Peak returns the largest reservation seen.
func (b *MemoryBudget) Peak() int64 { return b.peak.Load() }

// Limit returns the configured limit, 0 when unlimited.
func (b *MemoryBudget) Limit() int64 { return b.limit }
