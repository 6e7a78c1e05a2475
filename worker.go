package ocfcache

import (
	"context"
	"runtime"

	"github.com/ocfcache/ocfcache/internal/collab"
	"github.com/ocfcache/ocfcache/internal/dispatch"
)

// RunOne pops and drives exactly one request off the named queue (spec
// §4.13's worker loop): prepare its mapping and line locks, fire a clean
// if clean-before-reuse applies, and dispatch straight through if not.
// Returns false if the queue was empty.
//
// A request that suspends (pending line lock grant, or an in-flight
// cleaner) is not re-driven here — it re-enters the same queue via
// PushFront once its suspension resolves (onLineLocksGranted,
// cleanCompletion), to be picked up by a later RunOne call.
func (c *Cache) RunOne(ctx context.Context, queueID int) bool {
	item, ok := c.Queues[queueID].Pop()
	if !ok {
		return false
	}
	req, ok := item.(*Request)
	if !ok {
		return true
	}
	processRequest(ctx, c, req)
	return true
}

// Drain repeatedly calls RunOne until the queue is empty, for callers
// (tests, single-threaded examples) that have no separate worker
// goroutine pinned to each queue.
func (c *Cache) Drain(ctx context.Context, queueID int) {
	for c.RunOne(ctx, queueID) {
	}
}

// RunQueueWorker is the per-thread entry point of spec §4.13's worker
// loop: it locks the calling goroutine to its OS thread, pins that
// thread to the queue's configured CPU affinity (mirroring the
// teacher's ioLoop), then alternates between draining the queue and
// blocking until the next kick. It returns when ctx is cancelled.
// Callers wanting one OS thread per queue should launch this in its own
// goroutine, once per queue.
func (c *Cache) RunQueueWorker(ctx context.Context, queueID int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	q := c.Queues[queueID]
	if err := dispatch.PinToCPU(q.CPUAffinity(), queueID); err != nil {
		return err
	}

	for {
		c.Drain(ctx, queueID)
		if err := q.Wait(ctx); err != nil {
			return err
		}
	}
}

func processRequest(ctx context.Context, cache *Cache, req *Request) {
	if req.phase.IsRefreshing() {
		// Re-queued by onLineLocksGranted: the refresh interface re-checks
		// the mapping before dispatching (§4.12).
		Dispatch(ctx, req)
		return
	}
	if len(req.heldLines) > 0 {
		// Re-queued by cleanCompletion with its line locks still held:
		// continue straight to dispatch.
		Dispatch(ctx, req)
		return
	}

	status := PrepareClines(ctx, cache, req)
	switch status {
	case collab.LockAcquired:
		cache.Stats.recordRequest(req.Info, req.Flags.MappingError)
		if req.Flags.MappingError {
			failRequest(ctx, cache, req)
			return
		}
		if cleaning := CleanIfNeeded(ctx, cache, req); !cleaning {
			Dispatch(ctx, req)
		}
	case collab.LockError:
		cache.Stats.recordRequest(req.Info, true)
		failRequest(ctx, cache, req)
	case collab.LockPending:
		// Suspended: onLineLocksGranted will requeue this request once every
		// pending line lock is granted.
	}
}

func failRequest(ctx context.Context, cache *Cache, req *Request) {
	ReleaseLineLocks(cache, req)
	if req.Complete != nil {
		req.Complete(ctx, NewCacheError("prepare", cache.ID, ErrCodeInvalidMapping, "could not prepare request"))
	}
}
