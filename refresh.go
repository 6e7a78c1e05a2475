package ocfcache

import (
	"context"

	"github.com/ocfcache/ocfcache/internal/lock"
)

// onLineLocksGranted is the resume path of spec §4.10/§4.12: invoked
// (possibly from an arbitrary goroutine releasing someone else's lock)
// once every per-cache-line lock this request was waiting on has been
// granted. Per §9 ("suspension as state, not stack"), it never blocks or
// runs the request inline — it installs the refresh continuation and
// hands the request back to its dispatch queue for a worker to pick up.
func (c *Cache) onLineLocksGranted(ctx context.Context, req *Request) {
	if req.Callbacks != nil {
		req.Callbacks.Resume(ctx)
	}
	installRefresh(req)
	c.PushFrontForRefresh(req)
}

// installRefresh implements the first half of spec §4.12: it saves the
// request's current I/O interface and swaps in the refresh interface,
// using the Phase sum type (spec §9) rather than an untyped saved
// pointer.
func installRefresh(req *Request) {
	req.phase = Phase{kind: phaseRefreshing, saved: req.IOIface}
	req.IOIface = &refreshIOInterface{cache: req.Cache, req: req}
}

// refreshIOInterface is the transient I/O interface spec §4.12 installs
// around a resumed request. Both Read and Write re-validate the mapping
// before letting the request proceed.
type refreshIOInterface struct {
	cache *Cache
	req   *Request
}

func (r *refreshIOInterface) Read(ctx context.Context) error  { return r.refresh(ctx) }
func (r *refreshIOInterface) Write(ctx context.Context) error { return r.refresh(ctx) }

// refresh implements spec §4.12's refresh interface body: it calls
// check() under hb_rd; on success it restores the saved I/O interface and
// dispatches to it; on failure it fails the request with an invalid-
// mapping error, releases the request's line locks, and calls Complete.
func (r *refreshIOInterface) refresh(ctx context.Context) error {
	cache, req := r.cache, r.req

	buckets := bucketsForRequest(cache, req)
	hb := lock.LockShared(cache.Metadata, buckets)
	err := Check(cache, req)
	hb.Unlock()

	if err != nil {
		ReleaseLineLocks(cache, req)
		if req.Complete != nil {
			req.Complete(ctx, ErrInvalid)
		}
		return ErrInvalid
	}

	saved := req.phase.saved
	req.phase = Phase{kind: phaseNormal}
	req.IOIface = saved

	return Dispatch(ctx, req)
}

// Dispatch invokes the request's current I/O interface for its
// direction (read or write), the final step once preparation (and any
// refresh) has settled. An error here is a genuine I/O failure (the
// mapping and line locks are already settled by this point), so it
// counts against the cache's pass-through trip threshold (§4.14).
func Dispatch(ctx context.Context, req *Request) error {
	// A refreshing request's error is either check()'s ErrInvalid or one
	// the inner Dispatch of the restored interface has already counted.
	refreshing := req.phase.IsRefreshing()
	var err error
	if req.RW == IODirWrite {
		err = req.IOIface.Write(ctx)
	} else {
		err = req.IOIface.Read(ctx)
	}
	if err != nil && !refreshing && req.Cache != nil && req.Cache.Fallback != nil {
		req.Cache.Fallback.RecordError()
	}
	return err
}
