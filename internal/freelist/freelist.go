// Package freelist implements the pool of currently unused cache-line
// indices (spec §4.2): pop-one and query-count, both thread-safe.
//
// A sync.Pool was considered (it is the idiom the teacher reaches for
// elsewhere to avoid hot-path allocation) but rejected here: the mapping
// pipeline's precondition check (unmapped_count(req) > freelist.count())
// requires an exact live count, which sync.Pool does not expose.
package freelist

import (
	"sync"

	"github.com/ocfcache/ocfcache/internal/collab"
)

// List is a mutex-guarded LIFO stack of free cache-line ids.
type List struct {
	mu    sync.Mutex
	lines []collab.CacheLineID
}

// New creates a freelist pre-populated with every cache line in [0, n).
func New(n uint32) *List {
	lines := make([]collab.CacheLineID, n)
	for i := range lines {
		lines[i] = collab.CacheLineID(i)
	}
	return &List{lines: lines}
}

// Pop removes and returns one free cache line. ok is false if the
// freelist is empty; callers must not mutate partition membership on
// failure (§4.2).
func (l *List) Pop() (collab.CacheLineID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.lines)
	if n == 0 {
		return 0, false
	}
	line := l.lines[n-1]
	l.lines = l.lines[:n-1]
	return line, true
}

// Push returns a cache line to the pool, e.g. after eviction reclaims it.
// map_hndl_error does not push: it leaves unwound lines in their chains.
func (l *List) Push(line collab.CacheLineID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

// Count returns the number of free cache lines currently available.
func (l *List) Count() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint32(len(l.lines))
}

var _ collab.Freelist = (*List)(nil)
