package ocfcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocfcache/ocfcache/internal/collab"
	"github.com/ocfcache/ocfcache/internal/ocftest"
)

// TestPrepareClinesColdInsert covers §8 scenario 1: a cold request for
// one core line allocates, inserts, and notifies eviction.
func TestPrepareClinesColdInsert(t *testing.T) {
	eviction := ocftest.NewSimpleEviction()
	cache := newTestCacheWithEviction(t, 4, eviction)

	req := fullLineRequest(cache, 0, 42, IODirRead, 0)
	req.Callbacks = ocftest.NewEngineCallbacks(collab.LockRead)

	status := PrepareClines(context.Background(), cache, req)
	require.Equal(t, collab.LockAcquired, status)
	require.Equal(t, EntryInserted, req.Entries[0].Status)
	require.EqualValues(t, 1, req.Info.InsertNo)
	require.EqualValues(t, 0, req.Info.HitNo)
	require.EqualValues(t, 3, cache.Freelist.Count())
	require.EqualValues(t, 1, cache.Partitions.Size(0))
	require.Len(t, eviction.InitCalls(), 1)
	require.Len(t, eviction.HotCalls(), 1)

	ReleaseLineLocks(cache, req)
}

// TestPrepareClinesHotHit covers §8 scenario 2: repeating the same
// request finds the line, bumps hit_no, and never touches the freelist.
func TestPrepareClinesHotHit(t *testing.T) {
	eviction := ocftest.NewSimpleEviction()
	cache := newTestCacheWithEviction(t, 4, eviction)

	first := fullLineRequest(cache, 0, 42, IODirRead, 0)
	first.Callbacks = ocftest.NewEngineCallbacks(collab.LockRead)
	require.Equal(t, collab.LockAcquired, PrepareClines(context.Background(), cache, first))
	ReleaseLineLocks(cache, first)
	// The cold read's I/O fills the line before the repeat arrives.
	cache.Metadata.SetValidRange(first.Entries[0].CollIdx, 0, cache.Config().SectorsPerLine, true)

	second := fullLineRequest(cache, 0, 42, IODirRead, 0)
	second.Callbacks = ocftest.NewEngineCallbacks(collab.LockRead)
	status := PrepareClines(context.Background(), cache, second)
	require.Equal(t, collab.LockAcquired, status)
	require.Equal(t, EntryHit, second.Entries[0].Status)
	require.EqualValues(t, 1, second.Info.HitNo)
	require.EqualValues(t, 0, second.Info.InsertNo)
	require.EqualValues(t, 3, cache.Freelist.Count())
	require.Len(t, eviction.HotCalls(), 2)

	ReleaseLineLocks(cache, second)
}

// TestPrepareClinesEvictionPath covers §8 scenario 4: with the freelist
// empty and partition 0 full, a request for 3 new core lines must go
// through EVICT, reclaiming the 3 scripted victims, and the victims'
// old core lines must no longer resolve via lookup afterward.
func TestPrepareClinesEvictionPath(t *testing.T) {
	eviction := ocftest.NewSimpleEviction()
	cache := newTestCacheWithEviction(t, 3, eviction)

	var oldLines []collab.CacheLineID
	for i := uint64(0); i < 3; i++ {
		req := fullLineRequest(cache, 0, i, IODirWrite, 0)
		req.Callbacks = ocftest.NewEngineCallbacks(collab.LockNone)
		require.Equal(t, collab.LockAcquired, PrepareClines(context.Background(), cache, req))
		oldLines = append(oldLines, req.Entries[0].CollIdx)
	}
	require.EqualValues(t, 0, cache.Freelist.Count())

	eviction.Victims = oldLines

	req := NewRequest(0, 100, 102, IODirRead, 0)
	req.Cache = cache
	req.Position = 0
	req.Length = int64(cache.Config().SectorSize) * int64(cache.Config().SectorsPerLine)
	req.Callbacks = ocftest.NewEngineCallbacks(collab.LockNone)

	status := PrepareClines(context.Background(), cache, req)
	require.Equal(t, collab.LockAcquired, status)
	require.EqualValues(t, 3, req.Info.InsertNo)
	for i := range req.Entries {
		require.Equal(t, EntryInserted, req.Entries[i].Status)
	}

	for i := uint64(0); i < 3; i++ {
		looked := LookupMapEntry(cache, collab.CoreLine{CoreID: 0, Index: i})
		require.Equal(t, EntryMiss, looked.Status)
	}
}

// TestInvariantFreeXorOwned covers properties P1 and P2 around a single
// insert/evict transition: a mapped line is owned with a valid
// status/coll_idx (P2), and once reclaimed it is free and no longer
// owned (P1 — never both at once).
func TestInvariantFreeXorOwned(t *testing.T) {
	cache := newTestCache(t, 4)
	req := fullLineRequest(cache, 0, 1, IODirRead, 0)
	require.NoError(t, Map(cache, req))
	line := req.Entries[0].CollIdx

	_, owned := cache.Metadata.CoreInfo(line)
	require.True(t, owned)
	require.Contains(t, []EntryStatus{EntryHit, EntryInserted, EntryRemapped}, req.Entries[0].Status)
	require.Less(t, uint32(line), cache.Metadata.N())

	cache.Metadata.StartCollisionSharedAccess(line)
	cache.Metadata.RemoveFromCollision(line)
	cache.Metadata.SetCacheLineInvalidNoFlush(line)
	cache.Metadata.EndCollisionSharedAccess(line)
	cache.Partitions.RemoveFromPartition(0, line)
	cache.Freelist.Push(line)

	_, owned = cache.Metadata.CoreInfo(line)
	require.False(t, owned)
}

// TestAcquireLineLocksJoinsOnlyAfterEveryGrant is a regression test for
// the pending-grant counter race: notify can fire on another goroutine
// the instant a line becomes available, concurrently with
// acquireLineLocks still submitting later entries. Releasing every
// entry's contending lock from its own goroutine, started at the same
// moment acquireLineLocks begins, races notify against the loop body on
// every trial; onLineLocksGranted (observed here via the request landing
// back on its queue) must never fire until every entry has resolved.
func TestAcquireLineLocksJoinsOnlyAfterEveryGrant(t *testing.T) {
	const trials = 25
	const n = 6

	for trial := 0; trial < trials; trial++ {
		cache := newTestCache(t, 8)
		req := NewRequest(1, 0, n-1, IODirRead, 0)
		req.Cache = cache
		req.QueueID = 0
		req.Callbacks = ocftest.NewEngineCallbacks(collab.LockRead)

		for i := 0; i < n; i++ {
			req.Entries[i].CollIdx = collab.CacheLineID(i)
			require.Equal(t, collab.LockAcquired, cache.LineLocks.Acquire(collab.CacheLineID(i), collab.LockWrite, func() {}))
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(line collab.CacheLineID) {
				defer wg.Done()
				<-start
				cache.LineLocks.Release(line, collab.LockWrite)
			}(collab.CacheLineID(i))
		}

		close(start)
		status := acquireLineLocks(context.Background(), cache, req)
		wg.Wait()

		switch status {
		case collab.LockAcquired:
			require.Equal(t, n, len(req.heldLines))
		case collab.LockPending:
			require.Eventually(t, func() bool { return cache.Queues[0].Len() == 1 }, time.Second, time.Millisecond)
		default:
			t.Fatalf("unexpected status %v", status)
		}
		require.LessOrEqual(t, cache.Queues[0].Len(), 1)

		ReleaseLineLocks(cache, req)
	}
}
