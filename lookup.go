package ocfcache

import "github.com/ocfcache/ocfcache/internal/collab"

// LookupMapEntry implements spec §4.4 lookup_map_entry for one core line:
// it computes the owning hash bucket and walks the bucket's collision
// chain looking for an exact (core id, core line) match. The caller must
// hold the bucket's lock (read or write) for the entire call, per
// invariant I6.
func LookupMapEntry(cache *Cache, core collab.CoreLine) MapEntry {
	bucket := cache.Metadata.HashFunc(core)
	entry := MapEntry{
		Bucket:  bucket,
		Hash:    bucket,
		Core:    core,
		Status:  EntryMiss,
		CollIdx: NoCacheLine,
	}

	line := cache.Metadata.BucketHead(bucket)
	for line != NoCacheLine {
		if info, owned := cache.Metadata.CoreInfo(line); owned && info == core {
			entry.Status = EntryHit
			entry.CollIdx = line
			return entry
		}
		line = cache.Metadata.CollisionNext(line)
	}
	return entry
}
