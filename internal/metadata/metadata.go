// Package metadata implements the cache's metadata store (spec §4.1):
// the hash-bucket collision chains mapping cache lines to (core id, core
// line) pairs, and the per-line valid/dirty sector bitmaps and partition
// id. Concurrency is sharded by hash bucket, one sync.RWMutex per bucket,
// following the sharded-lock pattern of a sharded memory backend: lock
// only the buckets a request actually touches, never the whole table.
package metadata

import (
	"sync"

	"github.com/ocfcache/ocfcache/internal/bitset"
	"github.com/ocfcache/ocfcache/internal/collab"
)

// NoCacheLine is the sentinel meaning "not assigned": the largest uint32,
// outside every valid cache line index [0, N). It is a fixed constant, not
// the collision-table size N.
const NoCacheLine = collab.CacheLineID(^uint32(0))

// lineState is the per-cache-line metadata: owning core line, partition,
// collision-chain next pointer, and which bucket the line currently
// belongs to (needed to splice it back out on remap/evict).
type lineState struct {
	owned     bool
	core      collab.CoreLine
	partition uint32
	next      collab.CacheLineID
	bucket    uint32
}

// Store is the collision-table + per-line flag store. N is the number of
// cache lines (collision-table size); NumBuckets is the number of hash
// buckets; sectorsPerLine is how many valid/dirty bits each line tracks.
type Store struct {
	n               uint32
	sectorsPerLine  int
	numBuckets      uint32
	bucketLocks     []sync.RWMutex
	bucketHeads     []collab.CacheLineID
	lines           []lineState
	lineMu          []sync.Mutex // guards a single line's lineState outside bucket scope (collision shared access, §4.1)
	valid           *bitset.Set
	dirty           *bitset.Set
	physIndexByLine []uint64 // map_lg2phy: logical-to-physical ordering for sequentiality detection
}

// New allocates a metadata store for n cache lines, numBuckets hash
// buckets, and sectorsPerLine sectors tracked per line.
func New(n uint32, numBuckets uint32, sectorsPerLine int) *Store {
	s := &Store{
		n:               n,
		sectorsPerLine:  sectorsPerLine,
		numBuckets:      numBuckets,
		bucketLocks:     make([]sync.RWMutex, numBuckets),
		bucketHeads:     make([]collab.CacheLineID, numBuckets),
		lines:           make([]lineState, n),
		lineMu:          make([]sync.Mutex, n),
		valid:           bitset.New(int(n), sectorsPerLine),
		dirty:           bitset.New(int(n), sectorsPerLine),
		physIndexByLine: make([]uint64, n),
	}
	for i := range s.bucketHeads {
		s.bucketHeads[i] = NoCacheLine
	}
	for i := range s.lines {
		s.lines[i].next = NoCacheLine
		s.physIndexByLine[i] = uint64(i)
	}
	return s
}

// N returns the collision-table size.
func (s *Store) N() uint32 { return s.n }

// NumBuckets returns the number of hash buckets.
func (s *Store) NumBuckets() uint32 { return s.numBuckets }

// SectorsPerLine returns the number of sectors tracked per cache line.
func (s *Store) SectorsPerLine() int { return s.sectorsPerLine }

// BucketLock returns the RWMutex guarding a hash bucket (§5 tier 1).
func (s *Store) BucketLock(bucket uint32) *sync.RWMutex {
	return &s.bucketLocks[bucket%s.numBuckets]
}

// HashFunc computes the hash bucket for a (core id, core line) pair.
// FNV-1a over the two integers, matching the teacher's preference for a
// cheap non-cryptographic hash on the hot path.
func (s *Store) HashFunc(core collab.CoreLine) uint32 {
	h := uint64(14695981039346656037)
	mix := func(v uint64) {
		for i := 0; i < 8; i++ {
			h ^= (v >> (8 * i)) & 0xff
			h *= 1099511628211
		}
	}
	mix(uint64(core.CoreID))
	mix(core.Index)
	return uint32(h%uint64(s.numBuckets)) % s.numBuckets
}

// BucketHead returns the first cache line in a bucket's collision chain,
// or NoCacheLine if the chain is empty. Caller must hold BucketLock(bucket)
// for read or write.
func (s *Store) BucketHead(bucket uint32) collab.CacheLineID {
	return s.bucketHeads[bucket%s.numBuckets]
}

// CollisionNext returns the next cache line in a collision chain. Caller
// must hold the owning bucket's lock.
func (s *Store) CollisionNext(line collab.CacheLineID) collab.CacheLineID {
	return s.lines[line].next
}

// CoreInfo returns the (core id, core line) a cache line is currently
// mapped to, and whether it is owned at all.
func (s *Store) CoreInfo(line collab.CacheLineID) (collab.CoreLine, bool) {
	ls := &s.lines[line]
	return ls.core, ls.owned
}

// MapLogicalToPhysical returns the physical index used for adjacent-line
// sequentiality detection (§4.6). For this in-memory store, physical
// index coincides with cache line id, but the indirection exists so a
// future store (e.g. one with a remapped physical layout) has a seam.
func (s *Store) MapLogicalToPhysical(line collab.CacheLineID) uint64 {
	return s.physIndexByLine[line]
}

// Bucket returns the bucket a cache line currently belongs to. Only valid
// while the line is owned.
func (s *Store) Bucket(line collab.CacheLineID) uint32 {
	return s.lines[line].bucket
}

// StartCollisionSharedAccess / EndCollisionSharedAccess guard mutation of
// a single line's membership (collision chain, partition id) when the
// caller does not already hold an exclusive bucket lock for every bucket
// involved — e.g. the unwind path in map_hndl_error, which must touch a
// line without re-deriving its bucket lock.
func (s *Store) StartCollisionSharedAccess(line collab.CacheLineID) {
	s.lineMu[line].Lock()
}

func (s *Store) EndCollisionSharedAccess(line collab.CacheLineID) {
	s.lineMu[line].Unlock()
}

// AddToCollision splices a cache line onto the head of a bucket's
// collision chain and records its new owner. Caller must hold the
// bucket's write lock.
func (s *Store) AddToCollision(core collab.CoreLine, bucket uint32, line collab.CacheLineID) {
	b := bucket % s.numBuckets
	ls := &s.lines[line]
	ls.owned = true
	ls.core = core
	ls.bucket = b
	ls.next = s.bucketHeads[b]
	s.bucketHeads[b] = line
}

// RemoveFromCollision splices a cache line out of its bucket's collision
// chain. Caller must hold the bucket's write lock for s.lines[line].bucket.
func (s *Store) RemoveFromCollision(line collab.CacheLineID) {
	ls := &s.lines[line]
	if !ls.owned {
		return
	}
	b := ls.bucket
	if s.bucketHeads[b] == line {
		s.bucketHeads[b] = ls.next
	} else {
		cur := s.bucketHeads[b]
		for cur != NoCacheLine {
			next := s.lines[cur].next
			if next == line {
				s.lines[cur].next = ls.next
				break
			}
			cur = next
		}
	}
	ls.owned = false
	ls.next = NoCacheLine
	ls.core = collab.CoreLine{}
}

// PartitionID returns the partition a cache line is currently assigned to.
func (s *Store) PartitionID(line collab.CacheLineID) uint32 {
	return s.lines[line].partition
}

// SetPartitionID reassigns a cache line's partition id (used on re-part).
func (s *Store) SetPartitionID(line collab.CacheLineID, part uint32) {
	s.lines[line].partition = part
}

// ValidRange reports whether every sector in [from, to) is marked valid.
func (s *Store) ValidRange(line collab.CacheLineID, from, to int) bool {
	return s.valid.AllSet(int(line), from, to)
}

// SetValidRange marks sectors [from, to) valid or invalid.
func (s *Store) SetValidRange(line collab.CacheLineID, from, to int, v bool) {
	s.valid.SetRange(int(line), from, to, v)
}

// DirtyAny reports whether any sector in [from, to) is dirty.
func (s *Store) DirtyAny(line collab.CacheLineID, from, to int) bool {
	return s.dirty.AnySet(int(line), from, to)
}

// DirtyAll reports whether every sector in [from, to) is dirty.
func (s *Store) DirtyAll(line collab.CacheLineID, from, to int) bool {
	return s.dirty.AllSet(int(line), from, to)
}

// SetDirtyRange marks sectors [from, to) dirty or clean.
func (s *Store) SetDirtyRange(line collab.CacheLineID, from, to int, v bool) {
	s.dirty.SetRange(int(line), from, to, v)
}

// SetCacheLineInvalidNoFlush clears valid bits across the line's full
// sector range without issuing any writeback I/O (§4.1); used by
// map_hndl_error to undo a partial insert.
func (s *Store) SetCacheLineInvalidNoFlush(line collab.CacheLineID) {
	s.valid.ClearGroup(int(line))
	s.dirty.ClearGroup(int(line))
}
