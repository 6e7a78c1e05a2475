package ocfcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCheckConsistentAfterTraverse covers property P4: traverse()
// followed by check() on the same request without intervening mutation
// must report consistent (nil error, no entry flagged invalid).
func TestCheckConsistentAfterTraverse(t *testing.T) {
	cache := newTestCache(t, 4)
	req := fullLineRequest(cache, 0, 5, IODirRead, 0)
	require.NoError(t, Map(cache, req))

	req2 := fullLineRequest(cache, 0, 5, IODirRead, 0)
	Traverse(cache, req2)

	require.NoError(t, Check(cache, req2))
	for i := range req2.Entries {
		require.False(t, req2.Entries[i].Invalid)
	}
}

// TestCheckDetectsRemap covers the failure half of P4: if a line is
// remapped out from under a request between traverse() and check(),
// check() must flag the stale entry invalid and return an error.
func TestCheckDetectsRemap(t *testing.T) {
	cache := newTestCache(t, 4)
	req := fullLineRequest(cache, 0, 5, IODirRead, 0)
	require.NoError(t, Map(cache, req))
	staleLine := req.Entries[0].CollIdx

	// Evict the line out from under the request by hand: remove it from
	// its collision chain and push it back to the freelist, exactly as
	// reclaimVictims does during EVICT.
	cache.Metadata.StartCollisionSharedAccess(staleLine)
	cache.Metadata.RemoveFromCollision(staleLine)
	cache.Metadata.SetCacheLineInvalidNoFlush(staleLine)
	cache.Metadata.EndCollisionSharedAccess(staleLine)
	cache.Partitions.RemoveFromPartition(0, staleLine)
	cache.Freelist.Push(staleLine)

	err := Check(cache, req)
	require.Error(t, err)
	require.True(t, req.Entries[0].Invalid)
	require.True(t, IsCode(err, ErrCodeInvalidMapping))
}
