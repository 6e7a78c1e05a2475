// Package ocftest provides in-memory test doubles for the external
// collaborator interfaces defined in internal/collab, in the style of
// the teacher's testing.go MockBackend: call-count tracking plus
// compile-time interface assertions, supplemented with
// testify/mock-backed collaborators where a test needs to assert an
// exact call sequence (e.g. SetHot called once per HIT, §8 scenarios
// 1-2).
package ocftest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/ocfcache/ocfcache/internal/collab"
)

// Eviction is a testify/mock-backed collab.EvictionPolicy. Configure
// expectations with On("EvictDo", ...) etc., or use NewEviction for a
// simple fixed-victim-list double that needs no expectation setup.
type Eviction struct {
	mock.Mock
}

func (e *Eviction) InitCacheLine(line collab.CacheLineID) { e.Called(line) }
func (e *Eviction) SetHot(line collab.CacheLineID)        { e.Called(line) }
func (e *Eviction) EvictDo(ctx context.Context, count int) (collab.EvictResult, error) {
	args := e.Called(ctx, count)
	res, _ := args.Get(0).(collab.EvictResult)
	return res, args.Error(1)
}

// SimpleEviction is a hand-rolled eviction double (teacher's
// MockBackend style: plain counters, no expectation DSL) for tests that
// just need call counts and a scripted victim list.
type SimpleEviction struct {
	mu sync.Mutex

	initCalls []collab.CacheLineID
	hotCalls  []collab.CacheLineID

	Victims   []collab.CacheLineID
	EvictErr  error
}

func NewSimpleEviction() *SimpleEviction { return &SimpleEviction{} }

func (s *SimpleEviction) InitCacheLine(line collab.CacheLineID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls = append(s.initCalls, line)
}

func (s *SimpleEviction) SetHot(line collab.CacheLineID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hotCalls = append(s.hotCalls, line)
}

func (s *SimpleEviction) EvictDo(ctx context.Context, count int) (collab.EvictResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EvictErr != nil {
		return collab.EvictResult{}, s.EvictErr
	}
	if len(s.Victims) < count {
		return collab.EvictResult{}, errEvictionExhausted
	}
	out := s.Victims[:count]
	s.Victims = s.Victims[count:]
	return collab.EvictResult{Reclaimed: out}, nil
}

func (s *SimpleEviction) InitCalls() []collab.CacheLineID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collab.CacheLineID(nil), s.initCalls...)
}

func (s *SimpleEviction) HotCalls() []collab.CacheLineID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collab.CacheLineID(nil), s.hotCalls...)
}

type exhaustedError struct{}

func (exhaustedError) Error() string { return "eviction could not supply requested victim count" }

var errEvictionExhausted = exhaustedError{}

// SimpleCleaning is a no-op-by-default collab.CleaningPolicy double that
// records every line it was called with.
type SimpleCleaning struct {
	mu    sync.Mutex
	calls []collab.CacheLineID
}

func NewSimpleCleaning() *SimpleCleaning { return &SimpleCleaning{} }

func (c *SimpleCleaning) InitCacheBlock(line collab.CacheLineID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, line)
}

func (c *SimpleCleaning) Calls() []collab.CacheLineID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]collab.CacheLineID(nil), c.calls...)
}

// SimplePromotion always promotes unless ShouldPromoteFunc is set.
type SimplePromotion struct {
	mu               sync.Mutex
	ShouldPromoteFunc func(partitionID uint32, lines []collab.CoreLine) bool
	purged            [][]collab.CoreLine
}

func NewSimplePromotion() *SimplePromotion { return &SimplePromotion{} }

func (p *SimplePromotion) ShouldPromote(partitionID uint32, lines []collab.CoreLine) bool {
	if p.ShouldPromoteFunc != nil {
		return p.ShouldPromoteFunc(partitionID, lines)
	}
	return true
}

func (p *SimplePromotion) Purge(lines []collab.CoreLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, lines)
}

func (p *SimplePromotion) PurgeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.purged)
}

// SimpleCleaner fires synchronously and inline by default (deterministic
// for tests); set Err to simulate a cleaner failure, or set Async to true
// and call RunPending to control completion timing by hand.
type SimpleCleaner struct {
	mu      sync.Mutex
	Err     error
	Async   bool
	pending []func()
}

func NewSimpleCleaner() *SimpleCleaner { return &SimpleCleaner{} }

func (c *SimpleCleaner) Fire(ctx context.Context, attribs collab.CleanerAttribs) error {
	run := func() { attribs.Completion(ctx, c.Err) }
	if c.Async {
		c.mu.Lock()
		c.pending = append(c.pending, run)
		c.mu.Unlock()
		return nil
	}
	run()
	return nil
}

// RunPending runs every completion queued by an Async SimpleCleaner.
func (c *SimpleCleaner) RunPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// EngineCallbacks is a configurable collab.EngineCallbacks double.
type EngineCallbacks struct {
	mu          sync.Mutex
	LockKind    collab.LockKind
	NeedsClean  bool
	resumeCalls int
}

func NewEngineCallbacks(kind collab.LockKind) *EngineCallbacks {
	return &EngineCallbacks{LockKind: kind}
}

func (e *EngineCallbacks) GetLockType() collab.LockKind { return e.LockKind }

func (e *EngineCallbacks) Resume(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumeCalls++
}

func (e *EngineCallbacks) RequiresCleanData() bool { return e.NeedsClean }

func (e *EngineCallbacks) ResumeCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resumeCalls
}

// IOInterface is a configurable collab.IOInterface double that records
// every Read/Write call.
type IOInterface struct {
	mu         sync.Mutex
	ReadErr    error
	WriteErr   error
	readCalls  int
	writeCalls int
}

func NewIOInterface() *IOInterface { return &IOInterface{} }

func (io *IOInterface) Read(ctx context.Context) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.readCalls++
	return io.ReadErr
}

func (io *IOInterface) Write(ctx context.Context) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.writeCalls++
	return io.WriteErr
}

func (io *IOInterface) ReadCalls() int {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.readCalls
}

func (io *IOInterface) WriteCalls() int {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.writeCalls
}

// Compile-time interface assertions.
var (
	_ collab.EvictionPolicy  = (*Eviction)(nil)
	_ collab.EvictionPolicy  = (*SimpleEviction)(nil)
	_ collab.CleaningPolicy  = (*SimpleCleaning)(nil)
	_ collab.PromotionPolicy = (*SimplePromotion)(nil)
	_ collab.Cleaner         = (*SimpleCleaner)(nil)
	_ collab.EngineCallbacks = (*EngineCallbacks)(nil)
	_ collab.IOInterface     = (*IOInterface)(nil)
)
