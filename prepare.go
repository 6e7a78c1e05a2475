package ocfcache

import (
	"context"
	"sync/atomic"

	"github.com/ocfcache/ocfcache/internal/collab"
	"github.com/ocfcache/ocfcache/internal/lock"
)

// PrepareClines implements spec §4.7, the request preparation pipeline:
// lookup traversal under the hash-bucket read lock, a fast path for an
// already fully-mapped request, and a MISS_PATH/EVICT fallback that
// upgrades to the bucket write lock (or the global exclusive lock) to
// allocate or evict before retrying. Every exit path releases whatever
// locks it holds before returning, per §7.
func PrepareClines(ctx context.Context, cache *Cache, req *Request) collab.LockStatus {
	buckets := bucketsForRequest(cache, req)
	hb := lock.LockShared(cache.Metadata, buckets)

	Traverse(cache, req)

	if FullyMapped(req) {
		status := acquireLineLocks(ctx, cache, req)
		hb.Unlock()
		return status
	}

	if cache.Promotion != nil && !cache.Promotion.ShouldPromote(req.PartID, entryCoreLines(req)) {
		req.Flags.MappingError = true
		hb.Unlock()
		return collab.LockError
	}

	return missPath(ctx, cache, req, hb)
}

// missPath implements spec §4.7's MISS_PATH, called with hb (the shared
// bucket lock set from PrepareClines) still held.
func missPath(ctx context.Context, cache *Cache, req *Request, hb *lock.BucketSet) collab.LockStatus {
	if !cache.Partitions.IsEnabled(req.PartID) {
		req.Flags.MappingError = true
		hb.Unlock()
		return collab.LockError
	}

	if !cache.Partitions.HasSpace(req.PartID, uint32(unmappedCount(req))) {
		hb.Unlock()
		return evict(ctx, cache, req)
	}

	hb.Upgrade()

	if err := Map(cache, req); err != nil {
		hb.Unlock()
		return evict(ctx, cache, req)
	}

	status := acquireLineLocks(ctx, cache, req)
	if status == collab.LockError {
		// Map succeeded but we couldn't get the line locks: per spec §4.7
		// step 5, do not fall through to eviction in this case, just mark
		// the mapping as failed.
		req.Flags.MappingError = true
	}
	hb.Unlock()
	return status
}

// evict implements spec §4.7's EVICT path. Called with no bucket locks
// held (the caller always unlocks hb before jumping here); it takes the
// global metadata exclusive lock and then every bucket's write lock, so
// no request holding a bucket lock runs alongside it (§5 tier 3).
func evict(ctx context.Context, cache *Cache, req *Request) collab.LockStatus {
	cache.metaMu.Lock()
	defer cache.metaMu.Unlock()

	numBuckets := cache.Metadata.NumBuckets()
	for b := uint32(0); b < numBuckets; b++ {
		cache.Metadata.BucketLock(b).Lock()
	}
	defer func() {
		for b := numBuckets; b > 0; b-- {
			cache.Metadata.BucketLock(b - 1).Unlock()
		}
	}()

	Traverse(cache, req)

	if FullyMapped(req) {
		return acquireLineLocks(ctx, cache, req)
	}

	req.Flags.PartEvict = !cache.Partitions.HasSpace(req.PartID, uint32(unmappedCount(req)))

	result, err := cache.Eviction.EvictDo(ctx, unmappedCount(req))
	if err != nil {
		req.Flags.MappingError = true
		return collab.LockError
	}
	cache.Stats.recordEviction(len(result.Reclaimed), req.Flags.PartEvict)
	reclaimVictims(cache, req.PartID, result.Reclaimed)

	if err := Map(cache, req); err != nil {
		req.Flags.MappingError = true
		return collab.LockError
	}

	status := acquireLineLocks(ctx, cache, req)
	if status == collab.LockError {
		req.Flags.MappingError = true
	}
	return status
}

// reclaimVictims returns evicted cache lines to the freelist, removing
// them from their old collision chain and partition membership first.
// Callers must hold the global metadata exclusive lock.
func reclaimVictims(cache *Cache, requestingPartID uint32, victims []collab.CacheLineID) {
	for _, line := range victims {
		oldPart := cache.Metadata.PartitionID(line)

		cache.Metadata.StartCollisionSharedAccess(line)
		cache.Metadata.RemoveFromCollision(line)
		cache.Metadata.SetCacheLineInvalidNoFlush(line)
		cache.Metadata.EndCollisionSharedAccess(line)

		cache.Partitions.RemoveFromPartition(oldPart, line)
		cache.Freelist.Push(line)
	}
}

// bucketsForRequest computes and records the hash bucket for every entry,
// returning the deduplicated sorted set needed for lock.LockShared.
func bucketsForRequest(cache *Cache, req *Request) []uint32 {
	hashes := make([]uint32, len(req.Entries))
	for i := range req.Entries {
		b := cache.Metadata.HashFunc(req.Entries[i].Core)
		req.Entries[i].Bucket = b
		req.Entries[i].Hash = b
		hashes[i] = b
	}
	return lock.SortedBuckets(hashes)
}

// acquireLineLocks implements spec §4.10: it tries to obtain the engine
// variant's requested lock kind on every entry's cache line. If every
// acquisition is synchronous, it returns Acquired or Error immediately.
// If one or more are Pending, it registers a joined resume callback that
// fires cache.onLineLocksGranted once every pending grant has arrived,
// and returns Pending.
func acquireLineLocks(ctx context.Context, cache *Cache, req *Request) collab.LockStatus {
	kind := req.Callbacks.GetLockType()
	if kind == collab.LockNone {
		return collab.LockAcquired
	}

	// pending is reserved for the full entry count before any lock is
	// acquired, not incremented as pending grants turn up: Acquire can
	// invoke notify from another goroutine the instant it returns
	// LockPending, so incrementing inside this loop races with a notify
	// that already fired for an earlier entry and can drive pending to
	// zero (firing onLineLocksGranted) before every entry has even been
	// submitted. Reserving the full count up front and decrementing once
	// per entry — immediately for a synchronous result, via notify for a
	// pending one — keeps the total always exactly len(req.Entries).
	pending := new(atomic.Int32)
	pending.Store(int32(len(req.Entries)))
	notify := func() {
		if pending.Add(-1) == 0 {
			cache.onLineLocksGranted(ctx, req)
		}
	}

	hadError, sawPending, inlineZero := false, false, false
	for i := range req.Entries {
		line := req.Entries[i].CollIdx
		// Recorded before Acquire: a pending grant's notify may resume the
		// request on another goroutine as soon as Acquire returns.
		req.heldLines = append(req.heldLines, heldLine{line: line, kind: kind})
		switch cache.LineLocks.Acquire(line, kind, notify) {
		case collab.LockAcquired:
			inlineZero = pending.Add(-1) == 0
		case collab.LockPending:
			// Reservation already accounts for this entry; notify will
			// decrement it once the grant arrives.
			sawPending = true
		case collab.LockError:
			hadError = true
			req.heldLines = req.heldLines[:len(req.heldLines)-1]
			inlineZero = pending.Add(-1) == 0
		}
	}

	if hadError {
		return collab.LockError
	}
	if !sawPending {
		return collab.LockAcquired
	}
	if inlineZero {
		// Every pending grant arrived before the loop finished, so notify
		// never reached zero; resume the request here instead.
		cache.onLineLocksGranted(ctx, req)
	}
	return collab.LockPending
}

// ReleaseLineLocks releases every per-cache-line lock req currently
// holds, in acquisition order, and clears its held-lock bookkeeping.
// Safe to call on a request holding no locks.
func ReleaseLineLocks(cache *Cache, req *Request) {
	for _, h := range req.heldLines {
		cache.LineLocks.Release(h.line, h.kind)
	}
	req.heldLines = nil
}
