// Package partition implements the partition table (spec §4.3): each
// user-defined partition has a membership list and a capacity/enabled
// bit. The table itself never allocates or evicts cache lines; it only
// tracks membership and quota so the engine can decide when to divert to
// eviction.
package partition

import (
	"sync"

	"github.com/ocfcache/ocfcache/internal/collab"
)

// Partition is one user-defined partition.
type Partition struct {
	ID      uint32
	Enabled bool
	Quota   uint32

	members map[collab.CacheLineID]struct{}
}

// Table holds every partition in the cache, indexed by partition id.
type Table struct {
	mu    sync.Mutex
	parts map[uint32]*Partition
}

// New creates an empty partition table.
func New() *Table {
	return &Table{parts: make(map[uint32]*Partition)}
}

// Define registers a partition with the given quota, enabled by default.
func (t *Table) Define(id uint32, quota uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parts[id] = &Partition{
		ID:      id,
		Enabled: true,
		Quota:   quota,
		members: make(map[collab.CacheLineID]struct{}),
	}
}

// SetEnabled toggles a partition's enabled bit.
func (t *Table) SetEnabled(id uint32, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.parts[id]; ok {
		p.Enabled = enabled
	}
}

// IsEnabled reports whether a partition accepts new members (§4.3). An
// undefined partition is treated as disabled.
func (t *Table) IsEnabled(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[id]
	return ok && p.Enabled
}

// HasSpace reports whether unmapped more lines fit within the partition's
// remaining quota (§4.3). An undefined partition never has space.
func (t *Table) HasSpace(id uint32, unmapped uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[id]
	if !ok {
		return false
	}
	return uint32(len(p.members))+unmapped <= p.Quota
}

// AddToPartition records a cache line's membership in a partition (§4.1,
// used by map() after a successful insert and by the re-part path in
// request-info update rules).
func (t *Table) AddToPartition(id uint32, line collab.CacheLineID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[id]
	if !ok {
		return
	}
	p.members[line] = struct{}{}
}

// RemoveFromPartition drops a cache line's membership, e.g. when it is
// evicted back to the freelist (I2: a line is free XOR in a partition).
func (t *Table) RemoveFromPartition(id uint32, line collab.CacheLineID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.parts[id]; ok {
		delete(p.members, line)
	}
}

// Size returns the number of cache lines currently in a partition.
func (t *Table) Size(id uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[id]
	if !ok {
		return 0
	}
	return uint32(len(p.members))
}

// Members returns a snapshot of the cache lines belonging to a partition,
// used by the eviction collaborator when it needs candidates scoped to
// one partition.
func (t *Table) Members(id uint32) []collab.CacheLineID {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[id]
	if !ok {
		return nil
	}
	out := make([]collab.CacheLineID, 0, len(p.members))
	for line := range p.members {
		out = append(out, line)
	}
	return out
}
