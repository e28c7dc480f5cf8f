// Package testable implements the cooperative testable-mode scheduler
// (§4.7): a single global lock that lets a test drive the whole graph
// deterministically, plus per-variable pending counters that let
// stepApplication() know when the system has gone quiescent. Grounded on
// the goroutine/wait-group idiom of a generic worker pool and the
// sync.Cond-based backpressure of a bounded ring buffer, adapted here into
// a single binary gate instead of many independent slots.
package testable

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/metric"
	"github.com/ctrlmesh/ctrlmesh/node"
)

// variable tracks one push-type accessor's unread-message backlog.
type variable struct {
	name  string
	count int
}

// Scheduler is the process-wide cooperative lock plus per-variable pending
// counters described in §4.7. It implements accessor.Coordinator without
// importing the accessor package, avoiding the import cycle documented
// there.
type Scheduler struct {
	globalLock sync.Mutex

	mu       sync.Mutex
	pending  map[node.Identity]*variable
	order    []node.Identity
	exempt   map[node.Identity]bool
	held     bool
	progress bool

	metrics   *metric.Metrics
	threshold int
}

// NewScheduler creates a Scheduler with the given stall-detection threshold
// (§4.7's "100 times in succession", configurable via runtimeconfig).
func NewScheduler(metrics *metric.Metrics, threshold int) *Scheduler {
	if threshold <= 0 {
		threshold = 100
	}
	return &Scheduler{
		pending:   make(map[node.Identity]*variable),
		exempt:    make(map[node.Identity]bool),
		metrics:   metrics,
		threshold: threshold,
	}
}

// Register seeds the per-variable entry for id so stall reports can name it
// even before its first write. The resolver does not call it; a variable
// that is never registered is seeded by its first OnWrite instead.
func (s *Scheduler) Register(id node.Identity, qualifiedName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return
	}
	s.pending[id] = &variable{name: qualifiedName}
	s.order = append(s.order, id)
}

// MarkPollExempt flags id as poll-mode: per §4.7's exception, poll-mode
// variables are never wrapped by a decorator, but a component enumerating
// "every variable" for diagnostics should still know to skip it.
func (s *Scheduler) MarkPollExempt(id node.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exempt[id] = true
}

// OnWrite increments id's pending counter (§4.7 (a)).
func (s *Scheduler) OnWrite(id node.Identity) {
	s.mu.Lock()
	v, ok := s.pending[id]
	if !ok {
		v = &variable{name: id.String()}
		s.pending[id] = v
		s.order = append(s.order, id)
	}
	v.count++
	name := v.name
	count := v.count
	s.mu.Unlock()
	s.metrics.RecordTestablePending(name, count)
}

// OnRead decrements id's pending counter (§4.7 (b)) and records that some
// thread made progress, resetting the stall streak.
func (s *Scheduler) OnRead(id node.Identity) {
	s.mu.Lock()
	if v, ok := s.pending[id]; ok {
		if v.count > 0 {
			v.count--
		}
		s.progress = true
		s.mu.Unlock()
		s.metrics.RecordTestablePending(v.name, v.count)
		return
	}
	s.mu.Unlock()
}

// Lock acquires the global cooperative lock. A module thread calls this
// once, before entering its mainLoop, so that only one thread runs at a
// time; TestableDecorator's Release/Reacquire (below) are the only other
// touch points, invoked around each blocking read.
func (s *Scheduler) Lock() {
	s.globalLock.Lock()
	s.mu.Lock()
	s.held = true
	s.mu.Unlock()
}

// Unlock releases the global cooperative lock.
func (s *Scheduler) Unlock() {
	s.mu.Lock()
	s.held = false
	s.mu.Unlock()
	s.globalLock.Unlock()
}

// Release implements accessor.Coordinator: called by a TestableDecorator
// immediately before a blocking read, so other threads can advance while
// this one waits.
func (s *Scheduler) Release() { s.Unlock() }

// Reacquire implements accessor.Coordinator: called by a TestableDecorator
// on waking from a blocking read.
func (s *Scheduler) Reacquire() { s.Lock() }

// ReleaseIfHeld drops the global lock if this scheduler currently holds it,
// used during shutdown (§4.6: "if testable mode holds the global lock,
// release it first") so a module thread parked mid-blocking-read is not
// left holding a lock nobody will ever reacquire.
func (s *Scheduler) ReleaseIfHeld() {
	s.mu.Lock()
	held := s.held
	s.mu.Unlock()
	if held {
		s.Unlock()
	}
}

func (s *Scheduler) totalPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, v := range s.pending {
		total += v.count
	}
	return total
}

// stalledListing renders every variable with a non-zero pending count,
// sorted by name for a deterministic report (§4.7, §8 P7).
func (s *Scheduler) stalledListing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, id := range s.order {
		v := s.pending[id]
		if v.count > 0 {
			names = append(names, fmt.Sprintf("%s(pending=%d)", v.name, v.count))
		}
	}
	sort.Strings(names)
	return fmt.Sprintf("stalled with %d variable(s) still pending: %s", len(names), names)
}

// StepApplication runs while the sum of pending counters is positive,
// repeatedly yielding the global lock so blocked or waiting threads can
// drain their backlog, and returns once the system is quiescent (§4.7).
//
// The source scheduler detects a stall by counting how many times the same
// OS thread re-acquires the lock in succession; this scheduler has no
// thread identity to key off (accessor.Coordinator's Release/Reacquire
// carry none), so it uses the externally equivalent signal instead: no
// variable's pending count decreased for `threshold` consecutive yields.
func (s *Scheduler) StepApplication() error {
	s.metrics.RecordTestableStep()
	streak := 0
	for {
		total := s.totalPending()
		if total == 0 {
			return nil
		}

		s.mu.Lock()
		s.progress = false
		s.mu.Unlock()

		s.ReleaseIfHeld()
		runtime.Gosched()
		time.Sleep(time.Millisecond)
		s.Lock()

		s.mu.Lock()
		progressed := s.progress
		s.mu.Unlock()

		if progressed {
			streak = 0
			continue
		}
		streak++
		if streak >= s.threshold {
			s.metrics.RecordTestableStalled()
			return ctrlerrors.TestsStalled("testable", "StepApplication", s.stalledListing())
		}
	}
}
