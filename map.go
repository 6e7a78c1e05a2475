package ocfcache

import "github.com/ocfcache/ocfcache/internal/collab"

// Map implements spec §4.8's ocf_engine_map (the C name is kept in this
// doc comment only, never in identifiers): it commits the allocation
// decided by the miss path, splicing freshly popped cache lines into the
// collision chain and recomputing req.Info from scratch by re-examining
// every entry.
//
// Preconditions: the caller holds either the request's hash-bucket write
// lock set or the cache's global metadata exclusive lock (§4.7 MISS_PATH
// step 3 / EVICT step 1).
func Map(cache *Cache, req *Request) error {
	unmapped := unmappedCount(req)
	if unmapped == 0 {
		return nil
	}
	if unmapped > int(cache.Freelist.Count()) {
		req.Flags.MappingError = true
		return NewCacheError("map", cache.ID, ErrCodeNoFreeLines, "unmapped count exceeds freelist count")
	}

	req.Info = RequestInfo{}

	for i := range req.Entries {
		entry := &req.Entries[i]
		wasMiss := entry.Status == EntryMiss

		fresh := LookupMapEntry(cache, entry.Core)
		entry.Bucket = fresh.Bucket
		entry.Hash = fresh.Hash

		if fresh.Status != EntryHit {
			line, ok := cache.Freelist.Pop()
			if !ok {
				req.Flags.MappingError = true
				MapHandleError(cache, req)
				return NewCacheError("map", cache.ID, ErrCodeNoFreeLines, "freelist exhausted mid-map")
			}

			cache.Metadata.StartCollisionSharedAccess(line)
			cache.Metadata.AddToCollision(entry.Core, entry.Bucket, line)
			cache.Metadata.SetPartitionID(line, req.PartID)
			cache.Metadata.EndCollisionSharedAccess(line)

			cache.Partitions.AddToPartition(req.PartID, line)
			if cache.Cleaning != nil {
				cache.Cleaning.InitCacheBlock(line)
			}
			cache.Eviction.InitCacheLine(line)
			cache.Eviction.SetHot(line)

			entry.CollIdx = line
			entry.Status = EntryInserted
			updateRequestInfo(cache, req, i)
			continue
		}

		entry.CollIdx = fresh.CollIdx
		if wasMiss {
			// Metadata shifted under us between traverse() and map(): another
			// request inserted this exact core line while we waited for the
			// hb write lock / exclusive lock. We did not perform the insert
			// ourselves, so this is neither a fresh INSERTED nor an untouched
			// HIT.
			entry.Status = EntryRemapped
			patchRequestInfo(cache, req, i)
		} else {
			entry.Status = EntryHit
			updateRequestInfo(cache, req, i)
		}
	}

	if !req.Flags.MappingError && cache.Promotion != nil {
		cache.Promotion.Purge(entryCoreLines(req))
	}
	return nil
}

// unmappedCount returns the number of entries still without a cache line.
func unmappedCount(req *Request) int {
	n := 0
	for i := range req.Entries {
		if req.Entries[i].CollIdx == NoCacheLine {
			n++
		}
	}
	return n
}

func entryCoreLines(req *Request) []collab.CoreLine {
	out := make([]collab.CoreLine, len(req.Entries))
	for i := range req.Entries {
		out[i] = req.Entries[i].Core
	}
	return out
}
