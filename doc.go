// Package ocfcache implements the request preparation pipeline of a
// block-level caching engine: given an incoming multi-line I/O request,
// it locates each core line's current cache line (if any), allocates
// cache lines for missing ranges, coordinates with eviction and cleaning
// when space is scarce, and acquires the per-line locks needed before the
// actual I/O engine runs.
//
// The raw I/O path, metadata persistence, and specific eviction/cleaning/
// promotion algorithms are not implemented here; they are external
// collaborators defined in internal/collab and supplied by the caller
// (see policy/lru and internal/ocftest for reference implementations).
package ocfcache
