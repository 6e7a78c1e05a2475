package ocfcache

import "sync/atomic"

// Stats is the cache-level counters an operator polls for observability:
// cumulative requests, hits, inserts, invalid hits, re-partitions, mapping
// errors, evictions, and clean-before-reuse flushes across every request
// this cache has prepared. Per-request
// detail lives on RequestInfo; Stats is the running total spec.md's
// update_block_stats/update_request_stats accumulate into.
//
// Grounded on the teacher's Metrics: plain atomic.Uint64 counters, no
// locking, a Snapshot method that loads them all at once. Byte/latency/
// queue-depth histograms are dropped here — raw I/O timing belongs to
// the IOInterface collaborator, not the preparation pipeline.
type Stats struct {
	Requests   atomic.Uint64
	Hits       atomic.Uint64
	Inserts    atomic.Uint64
	Invalid    atomic.Uint64
	RePart     atomic.Uint64
	Evictions  atomic.Uint64
	PartEvicts atomic.Uint64
	CleanFires atomic.Uint64
	CleanLines atomic.Uint64
	MapErrors  atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats, safe to read without
// racing further updates.
type StatsSnapshot struct {
	Requests   uint64
	Hits       uint64
	Inserts    uint64
	Invalid    uint64
	RePart     uint64
	Evictions  uint64
	PartEvicts uint64
	CleanFires uint64
	CleanLines uint64
	MapErrors  uint64
}

// Snapshot copies every counter's current value.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Requests:   s.Requests.Load(),
		Hits:       s.Hits.Load(),
		Inserts:    s.Inserts.Load(),
		Invalid:    s.Invalid.Load(),
		RePart:     s.RePart.Load(),
		Evictions:  s.Evictions.Load(),
		PartEvicts: s.PartEvicts.Load(),
		CleanFires: s.CleanFires.Load(),
		CleanLines: s.CleanLines.Load(),
		MapErrors:  s.MapErrors.Load(),
	}
}

// recordRequest folds one request's final RequestInfo into the running
// totals, called once preparation has fully settled (acquired or error).
func (s *Stats) recordRequest(info RequestInfo, mappingError bool) {
	s.Requests.Add(1)
	s.Hits.Add(uint64(info.HitNo))
	s.Inserts.Add(uint64(info.InsertNo))
	s.Invalid.Add(uint64(info.InvalidNo))
	s.RePart.Add(uint64(info.RePartNo))
	if mappingError {
		s.MapErrors.Add(1)
	}
}

func (s *Stats) recordEviction(victims int, partEvict bool) {
	s.Evictions.Add(uint64(victims))
	if partEvict {
		s.PartEvicts.Add(1)
	}
}

func (s *Stats) recordClean(lines int) {
	s.CleanFires.Add(1)
	s.CleanLines.Add(uint64(lines))
}
