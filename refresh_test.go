package ocfcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocfcache/ocfcache/internal/collab"
	"github.com/ocfcache/ocfcache/internal/ocftest"
)

// TestRefreshResumeDispatchesWhenMappingStillValid covers the success
// half of §4.12's resume path: once installRefresh swaps in the refresh
// interface, a Read/Write with no intervening remap passes check() and
// falls through to the original I/O interface.
func TestRefreshResumeDispatchesWhenMappingStillValid(t *testing.T) {
	cache := newTestCache(t, 4)
	req := fullLineRequest(cache, 0, 9, IODirRead, 0)
	require.NoError(t, Map(cache, req))

	io := ocftest.NewIOInterface()
	req.IOIface = io
	req.Callbacks = ocftest.NewEngineCallbacks(collab.LockRead)

	installRefresh(req)
	err := req.IOIface.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, io.ReadCalls())
}

// TestRefreshResumeDetectsRemapMismatch covers §8 scenario 6: while a
// request is suspended awaiting a line lock, another request remaps one
// of its core lines out from under it (the line is reclaimed and handed
// to a different core line). On resume, refresh's check() catches the
// mismatch, fails the request with ErrInvalid, and releases its held
// line locks instead of dispatching stale I/O.
func TestRefreshResumeDetectsRemapMismatch(t *testing.T) {
	cache := newTestCache(t, 4)
	req := fullLineRequest(cache, 0, 9, IODirRead, 0)
	require.NoError(t, Map(cache, req))
	staleLine := req.Entries[0].CollIdx
	core := req.Entries[0].Core

	req.Callbacks = ocftest.NewEngineCallbacks(collab.LockRead)
	require.Equal(t, collab.LockAcquired, cache.LineLocks.Acquire(staleLine, collab.LockRead, func() {}))
	req.heldLines = append(req.heldLines, heldLine{line: staleLine, kind: collab.LockRead})

	io := ocftest.NewIOInterface()
	req.IOIface = io

	// Evict the line out from under the request, then let another
	// request claim it for a different core line — exactly what could
	// happen between suspension and resume.
	cache.Metadata.StartCollisionSharedAccess(staleLine)
	cache.Metadata.RemoveFromCollision(staleLine)
	cache.Metadata.SetCacheLineInvalidNoFlush(staleLine)
	cache.Metadata.EndCollisionSharedAccess(staleLine)
	cache.Partitions.RemoveFromPartition(0, staleLine)
	cache.Freelist.Push(staleLine)

	other := fullLineRequest(cache, 0, 77, IODirRead, 0)
	require.NoError(t, Map(cache, other))
	require.Equal(t, staleLine, other.Entries[0].CollIdx)

	var completeErr error
	req.Complete = func(ctx context.Context, err error) { completeErr = err }

	installRefresh(req)
	err := req.IOIface.Read(context.Background())
	require.ErrorIs(t, err, ErrInvalid)
	require.ErrorIs(t, completeErr, ErrInvalid)
	require.Empty(t, req.heldLines)
	require.Equal(t, 0, io.ReadCalls())

	looked := LookupMapEntry(cache, core)
	require.NotEqual(t, staleLine, looked.CollIdx)
}
