package ocfcache

import (
	"context"

	"github.com/ocfcache/ocfcache/internal/collab"
)

// entryGetter is a collab.CleanerGetter that yields cache line ids from a
// fixed slice, in order, used to hand the cleaner exactly the dirty HIT
// lines a request needs flushed (spec §4.11).
type entryGetter struct {
	lines []collab.CacheLineID
	pos   int
}

func (g *entryGetter) Next() (collab.CacheLineID, bool) {
	if g.pos >= len(g.lines) {
		return 0, false
	}
	line := g.lines[g.pos]
	g.pos++
	return line, true
}

// dirtyHitLines collects, in map-entry order, the cache lines of every
// HIT entry with any dirty sector in range — the population clean-
// before-reuse needs to flush (spec §4.11's "each dirty HIT"). A
// partially-dirty line still needs its dirty sectors flushed, so this
// filters on DirtyAny rather than DirtyAll; cleanCompletion zeroes both
// of the request's dirty counters once the cleaner reports success.
func dirtyHitLines(cache *Cache, req *Request) []collab.CacheLineID {
	from, to := cache.sectorRange(req)
	var lines []collab.CacheLineID
	for i := range req.Entries {
		entry := &req.Entries[i]
		if entry.Status != EntryHit {
			continue
		}
		if cache.Metadata.DirtyAny(entry.CollIdx, from, to) {
			lines = append(lines, entry.CollIdx)
		}
	}
	return lines
}

// CleanIfNeeded implements spec §4.11: when the request's aggregate
// DirtyAny is nonzero and the engine variant requires clean data before
// proceeding, it fires the cleaning collaborator over the request's dirty
// HIT lines. Returns true if a clean was fired (the caller must suspend
// and let cleanCompletion drive the request onward); false means the
// caller should proceed immediately (nothing to clean, or the variant
// doesn't need it).
func CleanIfNeeded(ctx context.Context, cache *Cache, req *Request) bool {
	if req.Info.DirtyAny == 0 {
		return false
	}
	if req.Callbacks == nil || !req.Callbacks.RequiresCleanData() {
		return false
	}

	lines := dirtyHitLines(cache, req)
	cache.Stats.recordClean(len(lines))
	attribs := collab.CleanerAttribs{
		Getter:     &entryGetter{lines: lines},
		Completion: func(ctx context.Context, err error) { cleanCompletion(ctx, cache, req, err) },
		Count:      len(lines),
		QueueID:    req.QueueID,
	}
	if err := cache.Cleaner.Fire(ctx, attribs); err != nil {
		cleanCompletion(ctx, cache, req, err)
	}
	return true
}

// cleanCompletion implements the two outcomes spec §4.11 describes for a
// cleaner callback: on error the request fails outright; on success the
// dirty counters are zeroed and the request is re-queued at the front to
// continue past the point that required clean data.
func cleanCompletion(ctx context.Context, cache *Cache, req *Request, err error) {
	if err != nil {
		req.Flags.MappingError = true
		ReleaseLineLocks(cache, req)
		if req.Complete != nil {
			req.Complete(ctx, WrapError("clean", err))
		}
		return
	}

	req.Info.DirtyAny = 0
	req.Info.DirtyAll = 0
	cache.PushFront(req)
}
