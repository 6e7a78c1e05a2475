package ocfcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocfcache/ocfcache/internal/collab"
	"github.com/ocfcache/ocfcache/internal/ocftest"
)

// TestDirtyHitLinesIncludesPartiallyDirtyHit is the direct regression
// test for the DirtyAny fix: a HIT line with only some of its sectors
// dirty must still be handed to the cleaner, not skipped because it
// isn't fully dirty.
func TestDirtyHitLinesIncludesPartiallyDirtyHit(t *testing.T) {
	cache := newTestCache(t, 4)

	cleanReq := fullLineRequest(cache, 0, 1, IODirRead, 0)
	require.NoError(t, Map(cache, cleanReq))
	cleanLine := cleanReq.Entries[0].CollIdx
	cache.Metadata.SetValidRange(cleanLine, 0, cache.Config().SectorsPerLine, true)

	dirtyReq := fullLineRequest(cache, 0, 2, IODirRead, 0)
	require.NoError(t, Map(cache, dirtyReq))
	dirtyLine := dirtyReq.Entries[0].CollIdx
	cache.Metadata.SetValidRange(dirtyLine, 0, cache.Config().SectorsPerLine, true)
	cache.Metadata.SetDirtyRange(dirtyLine, 2, 3, true) // only one of four sectors dirty

	req := NewRequest(0, 1, 2, IODirRead, 0)
	req.Cache = cache
	req.Position = 0
	req.Length = int64(cache.Config().SectorSize) * int64(cache.Config().SectorsPerLine)
	Traverse(cache, req)
	require.Equal(t, EntryHit, req.Entries[0].Status)
	require.Equal(t, EntryHit, req.Entries[1].Status)
	require.EqualValues(t, 1, req.Info.DirtyAny)
	require.EqualValues(t, 0, req.Info.DirtyAll)

	lines := dirtyHitLines(cache, req)
	require.Equal(t, []collab.CacheLineID{dirtyLine}, lines)
}

// TestCleanIfNeededFlushesAndRequeues covers §8 scenario 5: a variant
// that requires clean data, with dirty HIT lines present, fires the
// cleaner over exactly those lines (in map-entry order) and, on success,
// zeroes the request's dirty counters and re-queues it at the front.
func TestCleanIfNeededFlushesAndRequeues(t *testing.T) {
	cache := newTestCache(t, 4)

	a := fullLineRequest(cache, 0, 1, IODirRead, 0)
	require.NoError(t, Map(cache, a))
	lineA := a.Entries[0].CollIdx
	cache.Metadata.SetValidRange(lineA, 0, cache.Config().SectorsPerLine, true)
	cache.Metadata.SetDirtyRange(lineA, 0, cache.Config().SectorsPerLine, true)

	b := fullLineRequest(cache, 0, 2, IODirRead, 0)
	require.NoError(t, Map(cache, b))
	lineB := b.Entries[0].CollIdx
	cache.Metadata.SetValidRange(lineB, 0, cache.Config().SectorsPerLine, true)
	cache.Metadata.SetDirtyRange(lineB, 1, 2, true)

	req := NewRequest(0, 1, 2, IODirRead, 0)
	req.Cache = cache
	req.QueueID = 0
	req.Position = 0
	req.Length = int64(cache.Config().SectorSize) * int64(cache.Config().SectorsPerLine)
	req.Callbacks = &requireCleanCallbacks{}
	Traverse(cache, req)
	require.EqualValues(t, 2, req.Info.DirtyAny)

	fired := CleanIfNeeded(context.Background(), cache, req)
	require.True(t, fired)

	require.EqualValues(t, 0, req.Info.DirtyAny)
	require.EqualValues(t, 0, req.Info.DirtyAll)
	require.Equal(t, 1, cache.Queues[0].Len())
}

// TestCleanIfNeededSkipsWhenVariantDoesNotRequireClean asserts a variant
// that never needs clean data is left alone even with dirty HIT lines
// present — the caller proceeds immediately.
func TestCleanIfNeededSkipsWhenVariantDoesNotRequireClean(t *testing.T) {
	cache := newTestCache(t, 4)

	a := fullLineRequest(cache, 0, 1, IODirRead, 0)
	require.NoError(t, Map(cache, a))
	lineA := a.Entries[0].CollIdx
	cache.Metadata.SetValidRange(lineA, 0, cache.Config().SectorsPerLine, true)
	cache.Metadata.SetDirtyRange(lineA, 0, cache.Config().SectorsPerLine, true)

	req := fullLineRequest(cache, 0, 1, IODirRead, 0)
	req.Callbacks = ocftest.NewEngineCallbacks(collab.LockRead)
	Traverse(cache, req)
	require.EqualValues(t, 1, req.Info.DirtyAny)

	fired := CleanIfNeeded(context.Background(), cache, req)
	require.False(t, fired)
	require.EqualValues(t, 1, req.Info.DirtyAny) // left untouched
}

// TestCleanCompletionErrorFailsRequest covers the cleaner-failure half of
// §4.11: a cleaner error fails the request outright, releasing its held
// line locks and invoking Complete with a wrapped error instead of
// re-queuing.
func TestCleanCompletionErrorFailsRequest(t *testing.T) {
	cache := newTestCache(t, 4)
	cache.Cleaner = &ocftest.SimpleCleaner{Err: NewError("clean", ErrCodeCleanerFailed, "boom")}

	a := fullLineRequest(cache, 0, 1, IODirRead, 0)
	require.NoError(t, Map(cache, a))
	lineA := a.Entries[0].CollIdx
	cache.Metadata.SetValidRange(lineA, 0, cache.Config().SectorsPerLine, true)
	cache.Metadata.SetDirtyRange(lineA, 0, cache.Config().SectorsPerLine, true)

	req := fullLineRequest(cache, 0, 1, IODirRead, 0)
	req.Callbacks = &requireCleanCallbacks{}
	var completeErr error
	req.Complete = func(ctx context.Context, err error) { completeErr = err }
	Traverse(cache, req)

	fired := CleanIfNeeded(context.Background(), cache, req)
	require.True(t, fired)
	require.True(t, req.Flags.MappingError)
	require.Error(t, completeErr)
}

// requireCleanCallbacks is a minimal collab.EngineCallbacks whose variant
// always requires clean data before proceeding.
type requireCleanCallbacks struct{}

func (requireCleanCallbacks) GetLockType() collab.LockKind  { return collab.LockRead }
func (requireCleanCallbacks) Resume(ctx context.Context)    {}
func (requireCleanCallbacks) RequiresCleanData() bool       { return true }
