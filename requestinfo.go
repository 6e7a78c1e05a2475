package ocfcache

import "github.com/ocfcache/ocfcache/internal/collab"

// updateRequestInfo implements spec §4.6's request-info update rules for
// entry i, which must already have been looked up (HIT or INSERTED). It
// also folds in the sequentiality check against entry i-1.
func updateRequestInfo(cache *Cache, req *Request, i int) {
	entry := &req.Entries[i]
	from, to := cache.sectorRange(req)

	switch entry.Status {
	case EntryHit:
		if cache.Metadata.ValidRange(entry.CollIdx, from, to) {
			req.Info.HitNo++
		} else {
			req.Info.InvalidNo++
		}
		if cache.Metadata.DirtyAny(entry.CollIdx, from, to) {
			req.Info.DirtyAny++
		}
		if cache.Metadata.DirtyAll(entry.CollIdx, from, to) {
			req.Info.DirtyAll++
		}
		if cache.Metadata.PartitionID(entry.CollIdx) != req.PartID {
			entry.RePart = true
			req.Info.RePartNo++
			migratePartition(cache, entry.CollIdx, req.PartID)
		}
	case EntryInserted:
		req.Info.InsertNo++
	}

	updateSequentiality(cache, req, i)
}

// migratePartition moves a re-partitioned HIT's line membership from its
// current partition to newPart, the request's own partition. The move
// happens at once, while the HIT is counted during traverse/map; it is not
// deferred until the request commits.
// Guarded by StartCollisionSharedAccess rather than relying on the
// caller's bucket lock, since updateRequestInfo's HIT branch can run
// under hb_rd alone (the fast path in PrepareClines never upgrades).
func migratePartition(cache *Cache, line collab.CacheLineID, newPart uint32) {
	cache.Metadata.StartCollisionSharedAccess(line)
	oldPart := cache.Metadata.PartitionID(line)
	cache.Metadata.SetPartitionID(line, newPart)
	cache.Metadata.EndCollisionSharedAccess(line)

	cache.Partitions.RemoveFromPartition(oldPart, line)
	cache.Partitions.AddToPartition(newPart, line)
}

// patchRequestInfo implements spec §4.6's patch_req_info: used for
// REMAPPED entries instead of updateRequestInfo's HIT/INSERTED branches,
// since a remap is neither a fresh miss nor an untouched hit — it still
// counts as an insertion from the freelist/eviction's point of view, and
// still participates in sequentiality.
func patchRequestInfo(cache *Cache, req *Request, i int) {
	req.Info.InsertNo++
	updateSequentiality(cache, req, i)
}

// updateSequentiality bumps req.Info.SeqNo when entries i-1 and i are both
// mapped (any non-MISS status) and their physical indices are adjacent
// (spec §4.6, property P6). The request as a whole is sequential once
// SeqNo == CoreLineCount()-1.
func updateSequentiality(cache *Cache, req *Request, i int) {
	if i == 0 {
		return
	}
	prev := &req.Entries[i-1]
	cur := &req.Entries[i]
	if prev.Status == EntryMiss || cur.Status == EntryMiss {
		return
	}
	if cache.Metadata.MapLogicalToPhysical(prev.CollIdx)+1 == cache.Metadata.MapLogicalToPhysical(cur.CollIdx) {
		req.Info.SeqNo++
	}
}

// IsSequential reports whether every adjacent pair of mapped entries in
// req is physically contiguous (spec §4.6, "sequential request").
func IsSequential(req *Request) bool {
	return int(req.Info.SeqNo) == req.CoreLineCount()-1
}
