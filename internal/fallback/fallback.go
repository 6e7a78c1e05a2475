// Package fallback implements the pass-through trip counter of spec
// §4.14: a monotonic I/O-error counter that, on reaching a threshold,
// flips the cache into pass-through mode exactly once and logs only the
// transition. Grounded on the teacher's Metrics.RecordQueueDepth CAS loop
// for maintaining an atomic running max without double-counting.
package fallback

import (
	"sync/atomic"

	"github.com/ocfcache/ocfcache/internal/collab"
)

// Inactive disables the threshold entirely: errors are counted but the
// cache never trips into pass-through.
const Inactive = -1

// Counter tracks I/O errors and trips pass-through mode once at
// threshold.
type Counter struct {
	errors    atomic.Uint64
	tripped   atomic.Bool
	threshold int64
	logger    collab.Logger
}

// New creates a Counter. threshold <= 0 other than Inactive is treated as
// Inactive (never trips).
func New(threshold int64, logger collab.Logger) *Counter {
	return &Counter{threshold: threshold, logger: logger}
}

// RecordError increments the error count and, if the threshold is active
// and just reached, trips pass-through mode and logs the transition.
// Returns true if this call caused the transition.
func (c *Counter) RecordError() bool {
	n := c.errors.Add(1)
	if c.threshold == Inactive || c.threshold <= 0 {
		return false
	}
	if int64(n) < c.threshold {
		return false
	}
	if !c.tripped.CompareAndSwap(false, true) {
		return false
	}
	if c.logger != nil {
		c.logger.Printf("cache entering pass-through mode after %d I/O errors (threshold=%d)", n, c.threshold)
	}
	return true
}

// PassThrough reports whether the cache has tripped into pass-through mode.
func (c *Counter) PassThrough() bool {
	return c.tripped.Load()
}

// Count returns the current error count.
func (c *Counter) Count() uint64 {
	return c.errors.Load()
}

// Reset clears the counter and pass-through state (used when an operator
// manually re-enables the cache after addressing the underlying fault).
func (c *Counter) Reset() {
	c.errors.Store(0)
	c.tripped.Store(false)
}
