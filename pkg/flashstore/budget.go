// Package flashstore implements the persistent side of the capture engine:
// a chunked append-only sample store, a per-line UART log store, and the
// single byte budget both share. The backing filesystem is abstracted behind
// afero so tests run against memory and mount failures can be injected.
package flashstore

import "errors"

// ErrBudgetExhausted indicates the shared flash byte ceiling was reached.
var ErrBudgetExhausted = errors.New("flashstore: budget exhausted")

// Budget is the single platform ceiling for all flash usage. The sample
// store and the UART line log draw from one Budget; neither gets an
// independent guarantee. All accesses happen on the engine's single
// execution context, so no locking is needed.
type Budget struct {
	limit int64
	used  int64
}

// NewBudget creates a budget with the given byte limit. A non-positive
// limit means unlimited.
func NewBudget(limit int64) *Budget {
	return &Budget{limit: limit}
}

// Reserve claims n bytes, failing with ErrBudgetExhausted if the ceiling
// would be crossed. Nothing is claimed on failure.
func (b *Budget) Reserve(n int64) error {
	if b.limit > 0 && b.used+n > b.limit {
		return ErrBudgetExhausted
	}
	b.used += n
	return nil
}

// Release returns n bytes to the budget.
func (b *Budget) Release(n int64) {
	b.used -= n
	if b.used < 0 {
		b.used = 0
	}
}

// Used returns the bytes currently claimed.
func (b *Budget) Used() int64 { return b.used }

// Limit returns the configured ceiling, 0 meaning unlimited.
func (b *Budget) Limit() int64 { return b.limit }
