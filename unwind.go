package ocfcache

// MapHandleError implements spec §4.9's map_hndl_error: the unwind half
// of Map's transactional pair (§9 "error-unwind symmetry"). For every
// entry this request itself moved to INSERTED or REMAPPED, the cache
// line's sectors are invalidated (no writeback, nothing was ever made
// durable) and the entry is reset to MISS.
//
// The line is deliberately left spliced into its collision chain and
// partition rather than pushed back onto the freelist or removed from
// partition membership: it "returns to eviction's custody" (spec §4.9) so
// the ordinary eviction path reclaims it like any other cold line,
// instead of this failure path racing eviction/cleaning for the same
// line under a narrower lock scope. This is what keeps P3 true — metadata
// is unchanged by an unwind beyond the invalidation itself.
func MapHandleError(cache *Cache, req *Request) {
	for i := range req.Entries {
		entry := &req.Entries[i]
		if entry.Status != EntryInserted && entry.Status != EntryRemapped {
			continue
		}

		line := entry.CollIdx
		cache.Metadata.StartCollisionSharedAccess(line)
		cache.Metadata.SetCacheLineInvalidNoFlush(line)
		cache.Metadata.EndCollisionSharedAccess(line)

		entry.Status = EntryMiss
		entry.CollIdx = NoCacheLine
	}
}
