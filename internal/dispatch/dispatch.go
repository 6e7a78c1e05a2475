// Package dispatch implements the per-thread request queue dispatcher of
// spec §4.13: a FIFO per worker, protected by a lock that is safe to take
// from a resume callback (which may itself run on an arbitrary
// goroutine), supporting push-front (priority re-entry after a
// suspension) and push-back (new arrivals), both of which invoke Kick to
// wake a worker.
//
// Ownership rule: once Push{Front,Back} returns, the pusher must not
// touch the request again. This mirrors the teacher's queue.Runner, which
// hands a completed I/O tag off to the kernel via COMMIT_AND_FETCH and
// never touches it again until a fresh completion arrives.
package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sys/unix"
)

// Item is anything the dispatcher can queue; in production this is
// always *ocfcache.Request, but the dispatcher itself stays request-type
// agnostic so it can be unit tested without the engine package.
type Item any

// Queue is one worker's FIFO.
type Queue struct {
	id          int
	mu          sync.Mutex
	items       []Item
	kick        func(q *Queue)
	pushes      uint64
	cpuAffinity []int
	woken       chan struct{}
}

// Config configures a Queue.
type Config struct {
	ID int
	// Kick is invoked (synchronously, by whichever goroutine pushed) after
	// every push. It may wake a worker synchronously or just flag a
	// channel/condvar; the dispatcher does not care which.
	Kick func(q *Queue)
	// CPUAffinity optionally pins this queue's worker goroutine to one CPU,
	// following the teacher's per-queue affinity pinning in ioLoop.
	CPUAffinity []int
}

// New creates a queue dispatcher. If cfg.Kick is nil, the queue wakes its
// own RunQueueWorker loop internally (see Wait) instead of relying on an
// externally-supplied wake mechanism.
func New(cfg Config) *Queue {
	q := &Queue{id: cfg.ID, cpuAffinity: cfg.CPUAffinity, woken: make(chan struct{}, 1)}
	kick := cfg.Kick
	if kick == nil {
		kick = func(qq *Queue) { qq.wake() }
	}
	q.kick = kick
	return q
}

// ID returns this queue's worker id.
func (q *Queue) ID() int { return q.id }

// CPUAffinity returns the CPU set this queue's worker should be pinned
// to, as passed in Config.
func (q *Queue) CPUAffinity() []int { return q.cpuAffinity }

func (q *Queue) wake() {
	select {
	case q.woken <- struct{}{}:
	default:
	}
}

// Wait blocks until the queue has been kicked at least once since the
// last Wait call (via PushBack/PushFront's default kick), or ctx is
// done. Only meaningful when the queue was built with a nil Config.Kick;
// callers supplying their own Kick should use their own wake mechanism
// instead.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.woken:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushBack appends a newly-arrived request and kicks a worker.
func (q *Queue) PushBack(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.pushes++
	q.mu.Unlock()
	q.kick(q)
}

// PushFront re-enters a request at the head of the queue (used to
// continue a request after a suspension point resolves — line lock
// grant, cleaner completion, refresh re-validation) and kicks a worker.
func (q *Queue) PushFront(item Item) {
	q.mu.Lock()
	q.items = append([]Item{item}, q.items...)
	q.pushes++
	q.mu.Unlock()
	q.kick(q)
}

// Pop removes and returns the item at the head of the queue, or ok=false
// if empty.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pushes reports the cumulative number of pushes this queue has ever
// serviced (both front and back), matching the counter the teacher's
// Runner exposes per-queue for observability.
func (q *Queue) Pushes() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushes
}

// PinToCPU pins the calling goroutine's OS thread to one CPU from the
// round-robin-assigned affinity mask, exactly as the teacher's ioLoop
// does before entering its processing loop. Must be called after
// runtime.LockOSThread() by the caller, since affinity is a property of
// the OS thread, not the goroutine.
func PinToCPU(cpuAffinity []int, queueID int) error {
	if len(cpuAffinity) == 0 {
		return nil
	}
	cpu := cpuAffinity[queueID%len(cpuAffinity)]
	var mask unix.CPUSet
	mask.Set(cpu)
	return unix.SchedSetaffinity(0, &mask)
}
