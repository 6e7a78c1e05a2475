package ocfcache

// Traverse implements spec §4.5's traverse(req): it clears the request's
// aggregate info, re-looks-up every entry, notifies the eviction
// collaborator of each hit ("touched hot"), and recomputes request info
// and sequentiality for the resulting state.
//
// Preconditions: the caller holds hb_rd (or hb_wr, or the global
// exclusive lock) for every bucket this request's entries can hash to
// (§5 tier 1, invariant I6).
func Traverse(cache *Cache, req *Request) {
	req.Info = RequestInfo{}

	for i := range req.Entries {
		core := req.Entries[i].Core
		looked := LookupMapEntry(cache, core)
		req.Entries[i].Bucket = looked.Bucket
		req.Entries[i].Hash = looked.Hash
		req.Entries[i].Status = looked.Status
		req.Entries[i].CollIdx = looked.CollIdx
		req.Entries[i].Invalid = false
		req.Entries[i].RePart = false

		if looked.Status == EntryHit {
			cache.Eviction.SetHot(looked.CollIdx)
			updateRequestInfo(cache, req, i)
		}
	}
}

// FullyMapped reports whether every entry in req resolved to a cache
// line (spec §4.7's "fully_mapped" branch condition).
func FullyMapped(req *Request) bool {
	for i := range req.Entries {
		if req.Entries[i].CollIdx == NoCacheLine {
			return false
		}
	}
	return true
}
