package ocfcache

import "github.com/ocfcache/ocfcache/internal/fallback"

// Config holds the parameters needed to construct a Cache. There is no
// file or wire format for this struct (metadata persistence is a
// non-goal); callers build one in-process and pass it to New.
type Config struct {
	// CacheLineCount is N, the size of the collision table (number of
	// addressable cache lines).
	CacheLineCount uint32

	// SectorsPerLine is how many valid/dirty sector bits each cache line
	// tracks.
	SectorsPerLine int

	// SectorSize is the size in bytes of one sector, used only to convert
	// a request's byte Position/Length into a sector range.
	SectorSize int

	// NumBuckets is the number of hash buckets in the collision table.
	NumBuckets uint32

	// FallbackPTErrorThreshold is the number of I/O errors that trips
	// pass-through mode. fallback.Inactive disables tripping entirely.
	FallbackPTErrorThreshold int64

	// DefaultPartitionQuota is the quota assigned to partition 0, the
	// partition every request lands in unless it specifies another.
	DefaultPartitionQuota uint32

	// NumQueues is the number of per-thread dispatch queues.
	NumQueues int

	// CPUAffinity optionally pins dispatch queue workers to specific CPUs
	// (round-robin across queue id), following the teacher's per-queue
	// pinning.
	CPUAffinity []int
}

// DefaultParams returns a Config with sane defaults for cacheLineCount
// cache lines, sized the way the teacher's DefaultParams sizes queue
// depth and block size: round numbers that work for a small test cache
// as well as a production-sized one.
func DefaultParams(cacheLineCount uint32) Config {
	return Config{
		CacheLineCount:           cacheLineCount,
		SectorsPerLine:           8, // e.g. 4KiB line / 512B sector
		SectorSize:               512,
		NumBuckets:               nextPow2(cacheLineCount),
		FallbackPTErrorThreshold: int64(fallback.Inactive),
		DefaultPartitionQuota:    cacheLineCount,
		NumQueues:                1,
	}
}

// nextPow2 rounds n up to the next power of two, with a floor of 1, so the
// default bucket count gives a reasonably shallow collision chain without
// requiring the caller to pick one.
func nextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}
