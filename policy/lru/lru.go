// Package lru is a reference collab.EvictionPolicy: a plain least-
// recently-used list over cache line ids. It is sample wiring, not core
// — the preparation pipeline never assumes anything about its internals,
// only the collab.EvictionPolicy contract (InitCacheLine, SetHot,
// EvictDo).
//
// Grounded on the concurrent LRU in the example pack: a container/list
// doubly-linked list with move-to-front on access and pop-from-back on
// eviction. That example additionally guards its key map with a
// lock-free concurrent map because its callers can touch arbitrary keys
// from anywhere; this policy's callers always already hold the relevant
// cache line's hash-bucket lock (prepare-clines pipeline, §5 tier 1)
// before calling InitCacheLine/SetHot, and the global metadata exclusive
// lock before calling EvictDo, so a single mutex over the list is
// sufficient and a concurrent map would just add overhead for no benefit.
package lru

import (
	"container/list"
	"context"
	"sync"

	"github.com/ocfcache/ocfcache/internal/collab"
)

// Policy is a least-recently-used collab.EvictionPolicy over cache line
// ids: SetHot moves a line to the front, EvictDo pops from the back.
type Policy struct {
	mu       sync.Mutex
	elements map[collab.CacheLineID]*list.Element
	order    *list.List // front = hottest, back = coldest
}

// New creates an empty LRU eviction policy.
func New() *Policy {
	return &Policy{
		elements: make(map[collab.CacheLineID]*list.Element),
		order:    list.New(),
	}
}

// InitCacheLine registers a cache line in the LRU order at the front, the
// moment it starts hosting data (spec §6).
func (p *Policy) InitCacheLine(line collab.CacheLineID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushFrontLocked(line)
}

// SetHot moves a previously-registered cache line to the front of the
// order on access (spec §6's "touched hot" notification).
func (p *Policy) SetHot(line collab.CacheLineID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[line]; ok {
		p.order.MoveToFront(el)
		return
	}
	p.pushFrontLocked(line)
}

func (p *Policy) pushFrontLocked(line collab.CacheLineID) {
	if el, ok := p.elements[line]; ok {
		p.order.MoveToFront(el)
		return
	}
	p.elements[line] = p.order.PushFront(line)
}

// EvictDo pops up to count lines from the back of the order (the
// coldest), removing them from the policy's bookkeeping, and returns
// them as eviction victims. An error is returned only if fewer than
// count lines are available to reclaim at all.
func (p *Policy) EvictDo(ctx context.Context, count int) (collab.EvictResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.order.Len() < count {
		return collab.EvictResult{}, errExhausted
	}

	victims := make([]collab.CacheLineID, 0, count)
	for i := 0; i < count; i++ {
		back := p.order.Back()
		line := back.Value.(collab.CacheLineID)
		p.order.Remove(back)
		delete(p.elements, line)
		victims = append(victims, line)
	}
	return collab.EvictResult{Reclaimed: victims}, nil
}

type exhaustedError struct{}

func (exhaustedError) Error() string { return "lru: could not supply requested eviction count" }

var errExhausted = exhaustedError{}

var _ collab.EvictionPolicy = (*Policy)(nil)
