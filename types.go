package ocfcache

import (
	"context"

	"github.com/google/uuid"

	"github.com/ocfcache/ocfcache/internal/collab"
)

// EntryStatus is a map entry's lookup/mapping state (spec §3).
type EntryStatus int

const (
	EntryMiss EntryStatus = iota
	EntryHit
	EntryInserted
	EntryRemapped
)

func (s EntryStatus) String() string {
	switch s {
	case EntryMiss:
		return "MISS"
	case EntryHit:
		return "HIT"
	case EntryInserted:
		return "INSERTED"
	case EntryRemapped:
		return "REMAPPED"
	default:
		return "UNKNOWN"
	}
}

// MapEntry is the per-core-line state of one request (spec §3). CollIdx is
// metadata.NoCacheLine until a mapping has been found or created; Bucket is
// always recorded by lookup so a later insert knows where to splice.
type MapEntry struct {
	Hash    uint32
	Bucket  uint32
	CollIdx collab.CacheLineID
	Core    collab.CoreLine
	Status  EntryStatus
	Invalid bool
	RePart  bool
}

// IODir distinguishes a read request from a write request; engine
// variants use this (via EngineCallbacks.GetLockType) to decide whether
// they want a read or write per-cache-line lock.
type IODir int

const (
	IODirRead IODir = iota
	IODirWrite
)

// RequestInfo is the aggregate counters a request accumulates while its
// entries are looked up and mapped (spec §4.6).
type RequestInfo struct {
	HitNo     uint32
	InsertNo  uint32
	InvalidNo uint32
	RePartNo  uint32
	SeqNo     uint32
	DirtyAny  uint32
	DirtyAll  uint32
}

// RequestFlags are the sticky booleans a request carries through
// preparation (spec §3, §4.7).
type RequestFlags struct {
	MappingError bool
	PartEvict    bool
	Internal     bool
}

// phaseKind discriminates Phase's two variants.
type phaseKind int

const (
	phaseNormal phaseKind = iota
	phaseRefreshing
)

// Phase is the sum type spec §9 calls for in place of pointer
// type-punning: a request is either Normal (dispatching straight to its
// IOIface) or Refreshing (a transient state installed by resume, §4.12,
// holding the IOIface that refresh must restore on success).
type Phase struct {
	kind  phaseKind
	saved collab.IOInterface
}

// IsRefreshing reports whether the request is mid-refresh.
func (p Phase) IsRefreshing() bool { return p.kind == phaseRefreshing }

// CompletionFunc is invoked exactly once when a request finishes, whether
// by success, mapping error, or I/O error.
type CompletionFunc func(ctx context.Context, err error)

// Request is one multi-line I/O request moving through the preparation
// pipeline (spec §3). A Request is owned by its issuer from creation
// until Complete fires; once queued via Cache.PushBack/PushFront it must
// not be touched by the pusher (§4.13).
type Request struct {
	Cache *Cache

	Core           uint32
	CoreLineFirst  uint64
	CoreLineLast   uint64
	RW             IODir
	PartID         uint32
	Position       int64
	Length         int64
	QueueID        int
	Internal       bool

	Entries []MapEntry
	Info    RequestInfo
	Flags   RequestFlags
	phase   Phase

	Callbacks collab.EngineCallbacks
	IOIface   collab.IOInterface
	Complete  CompletionFunc

	TraceID uuid.UUID

	// heldLines records the per-cache-line locks currently held by this
	// request, in acquisition order, so they can be released symmetrically
	// on every exit path (§7).
	heldLines []heldLine
}

type heldLine struct {
	line collab.CacheLineID
	kind collab.LockKind
}

// CoreLineCount returns the number of core lines this request spans.
func (r *Request) CoreLineCount() int {
	return int(r.CoreLineLast-r.CoreLineFirst) + 1
}

// NewRequest builds a Request covering [coreLineFirst, coreLineLast] for
// one core, with one freshly zeroed MapEntry per core line.
func NewRequest(core uint32, coreLineFirst, coreLineLast uint64, rw IODir, partID uint32) *Request {
	n := int(coreLineLast-coreLineFirst) + 1
	entries := make([]MapEntry, n)
	for i := range entries {
		entries[i].CollIdx = NoCacheLine
		entries[i].Core = collab.CoreLine{CoreID: core, Index: coreLineFirst + uint64(i)}
	}
	return &Request{
		Core:          core,
		CoreLineFirst: coreLineFirst,
		CoreLineLast:  coreLineLast,
		RW:            rw,
		PartID:        partID,
		Entries:       entries,
		TraceID:       uuid.New(),
	}
}
