// Package collab defines the external collaborator interfaces the engine
// consumes but does not implement: the raw metadata accessors, the
// freelist, the eviction/cleaning/promotion policies, the cleaner, and
// the request/IO callback pairs. Keeping these as a separate internal
// package (rather than defining them alongside the engine) lets reference
// implementations (policy/lru, internal/ocftest) depend on the interfaces
// without importing the engine package, avoiding an import cycle.
package collab

import "context"

// CacheLineID addresses a single slot in the cache device's collision table.
type CacheLineID uint32

// CoreLine identifies a fixed-size region of a core device's LBA space.
type CoreLine struct {
	CoreID uint32
	Index  uint64
}

// Freelist is the pool of currently unowned cache-line indices (§4.2).
type Freelist interface {
	Pop() (CacheLineID, bool)
	Push(CacheLineID)
	Count() uint32
}

// EvictResult is the outcome of an eviction request. A nil error with a
// shorter-than-requested slice is never valid: EvictDo either supplies the
// full count or returns a non-nil error.
type EvictResult struct {
	Reclaimed []CacheLineID
}

// EvictionPolicy is notified of hot accesses and new inserts, and chooses
// victims to reclaim when the freelist and partition quotas are
// insufficient (§6). EvictDo returns a distinct error (rather than
// overloading a lookup-status sum type, per spec.md §9's open question)
// when it cannot supply the requested count.
type EvictionPolicy interface {
	InitCacheLine(line CacheLineID)
	SetHot(line CacheLineID)
	EvictDo(ctx context.Context, count int) (EvictResult, error)
}

// CleaningPolicy provides an optional per-line init hook invoked the first
// time a cache line starts hosting data for a given policy id (§6).
type CleaningPolicy interface {
	// InitCacheBlock is called once, right after a MISS is spliced into the
	// collision chain and before any data is written. May be nil-checked by
	// callers (policies are not required to implement it).
	InitCacheBlock(line CacheLineID)
}

// PromotionPolicy decides whether a miss is worth admitting, and is
// notified to purge bookkeeping once a request's lines have committed.
type PromotionPolicy interface {
	ShouldPromote(partitionID uint32, lines []CoreLine) bool
	Purge(lines []CoreLine)
}

// CleanerGetter yields the coll_idx of each dirty line that needs
// writeback, in request order, and returns ok=false once exhausted.
type CleanerGetter interface {
	Next() (CacheLineID, bool)
}

// CleanerCompletion is invoked once a cleaner finishes flushing the lines
// yielded by a CleanerGetter.
type CleanerCompletion func(ctx context.Context, err error)

// CleanerAttribs bundles everything a Cleaner needs to flush a batch of
// dirty lines on behalf of one request (§4.11).
type CleanerAttribs struct {
	Getter        CleanerGetter
	Completion    CleanerCompletion
	Count         int
	QueueID       int
	LockCacheLine bool
}

// Cleaner fires a writeback for the dirty lines described by attribs.
// Always asynchronous: Fire must not block waiting for the writeback to
// complete, it schedules it and returns.
type Cleaner interface {
	Fire(ctx context.Context, attribs CleanerAttribs) error
}

// LockStatus is the outcome of a line-lock acquisition attempt (§4.10).
type LockStatus int

const (
	LockAcquired LockStatus = iota
	LockPending
	LockError
)

// LockKind requests the type of per-cache-line lock a request needs.
type LockKind int

const (
	LockNone LockKind = iota
	LockRead
	LockWrite
)

// EngineCallbacks lets the engine variant (read path vs write path)
// customize lock acquisition and be notified when a suspended request
// resumes (§6, §4.10).
type EngineCallbacks interface {
	GetLockType() LockKind
	Resume(ctx context.Context)
	// RequiresCleanData reports whether this engine variant needs dirty
	// data flushed before it can proceed (§4.11) — true for a variant that
	// is about to overwrite or bypass the cache line's current contents,
	// false for one that will just read through existing dirty data.
	RequiresCleanData() bool
}

// IOInterface is the pair of entry points the engine dispatches to once a
// request's mapping and line locks are settled (§6). The engine swaps in
// a transient refresh interface around this pair during resume (§4.12).
type IOInterface interface {
	Read(ctx context.Context) error
	Write(ctx context.Context) error
}

// Logger is the minimal logging surface collaborators and internal
// packages depend on, satisfied by *logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
}
