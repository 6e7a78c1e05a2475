package ocfcache

import (
	"sync"

	"github.com/ocfcache/ocfcache/internal/collab"
	"github.com/ocfcache/ocfcache/internal/dispatch"
	"github.com/ocfcache/ocfcache/internal/fallback"
	"github.com/ocfcache/ocfcache/internal/freelist"
	"github.com/ocfcache/ocfcache/internal/lock"
	"github.com/ocfcache/ocfcache/internal/logging"
	"github.com/ocfcache/ocfcache/internal/metadata"
	"github.com/ocfcache/ocfcache/internal/partition"
)

// NoCacheLine is the sentinel meaning "not assigned" (the largest uint32,
// not the collision-table size N), re-exported from internal/metadata so callers outside this module never
// need to import the internal package just to compare against it.
const NoCacheLine = metadata.NoCacheLine

// Cache wires together every collaborator named in spec.md §2/§6: the
// metadata store, freelist, partition table, two-tier lock manager,
// eviction/cleaning/promotion policies, cleaner, dispatch queues, the
// fallback pass-through counter, and the running request/eviction stats.
// It is the handle every Request is prepared against.
type Cache struct {
	ID uint32

	cfg Config

	Metadata   *metadata.Store
	Freelist   *freelist.List
	Partitions *partition.Table
	LineLocks  *lock.LineLocks

	// metaMu is the global metadata exclusive lock (§5 tier 3), held only
	// around the EVICT path.
	metaMu sync.Mutex

	Eviction  collab.EvictionPolicy
	Cleaning  collab.CleaningPolicy
	Promotion collab.PromotionPolicy
	Cleaner   collab.Cleaner

	Queues   []*dispatch.Queue
	Fallback *fallback.Counter
	Stats    *Stats

	Logger *logging.Logger
}

// New constructs a Cache from cfg and its collaborators. eviction and
// cleaner must not be nil; cleaning may be nil (the init-cache-block hook
// is optional per §6), and so may promotion (every miss is then admitted).
func New(id uint32, cfg Config, eviction collab.EvictionPolicy, cleaning collab.CleaningPolicy, promotion collab.PromotionPolicy, cleaner collab.Cleaner, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Cache{
		ID:         id,
		cfg:        cfg,
		Metadata:   metadata.New(cfg.CacheLineCount, cfg.NumBuckets, cfg.SectorsPerLine),
		Freelist:   freelist.New(cfg.CacheLineCount),
		Partitions: partition.New(),
		LineLocks:  lock.NewLineLocks(cfg.CacheLineCount),
		Eviction:   eviction,
		Cleaning:   cleaning,
		Promotion:  promotion,
		Cleaner:    cleaner,
		Fallback:   fallback.New(cfg.FallbackPTErrorThreshold, logger.WithCache(id)),
		Stats:      &Stats{},
		Logger:     logger,
	}
	c.Partitions.Define(0, cfg.DefaultPartitionQuota)
	numQueues := cfg.NumQueues
	if numQueues < 1 {
		numQueues = 1
	}
	c.Queues = make([]*dispatch.Queue, numQueues)
	for i := range c.Queues {
		c.Queues[i] = dispatch.New(dispatch.Config{ID: i, CPUAffinity: cfg.CPUAffinity})
	}
	return c
}

// Config returns the configuration the cache was built from.
func (c *Cache) Config() Config { return c.cfg }

// sectorRange converts a request's byte Position/Length into the
// half-open sector range within one cache line it covers, clamped to
// [0, SectorsPerLine].
func (c *Cache) sectorRange(r *Request) (from, to int) {
	ss := c.cfg.SectorSize
	if ss <= 0 {
		return 0, c.cfg.SectorsPerLine
	}
	from = int(r.Position / int64(ss))
	to = from + int(r.Length+int64(ss)-1)/ss
	if to > c.cfg.SectorsPerLine {
		to = c.cfg.SectorsPerLine
	}
	if from > to {
		from = to
	}
	return from, to
}

// PushBack queues a freshly-arrived request on one of the cache's
// dispatch queues (§4.13). Once this returns the caller must not touch
// req again.
func (c *Cache) PushBack(req *Request) {
	req.QueueID = req.QueueID % len(c.Queues)
	c.Queues[req.QueueID].PushBack(req)
}

// PushFront re-enters a request at the head of its queue, preserving any
// prior mapping error (§9 open question 1, DESIGN.md).
func (c *Cache) PushFront(req *Request) {
	c.Queues[req.QueueID].PushFront(req)
}

// PushFrontForRefresh re-enters a request at the head of its queue for
// the refresh-install path (§4.12), which always starts a fresh
// preparation attempt and so clears any prior mapping error.
func (c *Cache) PushFrontForRefresh(req *Request) {
	req.Flags.MappingError = false
	c.Queues[req.QueueID].PushFront(req)
}
