// Package transport implements the value transport primitive (§4.1): a
// synchronized feeder/consumer pair sharing a bounded queue of version-
// stamped value buffers, grounded on the mutex+sync.Cond circular-buffer
// pattern used throughout the retrieval pack's buffering code.
package transport

import (
	"sync"

	"github.com/ctrlmesh/ctrlmesh/types"
)

// Version is a causal ordering tag, monotonic within one Pair: each Pair
// numbers its own writes (or poll fetches) from 1, so versions of different
// pairs are not ordered against each other. No wall-clock semantics are
// implied.
type Version uint64

// versioned pairs one buffer with the version it was written under.
type versioned[T comparable] struct {
	version Version
	value   *types.Buffer[T]
}

// Pair is a synchronized (feeder, consumer) endpoint pair for one resolved
// user type T. Buffers are swapped, not copied, across the boundary where
// safe: Write and the read methods hand back the *types.Buffer[T] pointer
// that was enqueued rather than cloning it.
type Pair[T comparable] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	capacity int
	queue    []versioned[T]

	version   Version
	current   *versioned[T] // last value consumed, visible between reads
	dataLost  bool
	closed    bool
	pushMode  bool // true: readBlocking waits for a push; false: poll triggers transfer
	pollFetch func() (*types.Buffer[T], error)
}

// NewPushPair constructs a push-mode pair with the given queue depth.
func NewPushPair[T comparable](capacity int) *Pair[T] {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pair[T]{capacity: capacity, pushMode: true}
	p.notEmpty = sync.NewCond(&p.mu)
	return p
}

// NewPollPair constructs a poll-mode pair. readBlocking/readNonBlocking call
// fetch to obtain the next buffer instead of waiting on the queue.
func NewPollPair[T comparable](fetch func() (*types.Buffer[T], error)) *Pair[T] {
	p := &Pair[T]{capacity: 1, pushMode: false, pollFetch: fetch}
	p.notEmpty = sync.NewCond(&p.mu)
	return p
}

// Write advances the version and enqueues buf. Returns dataLost=true iff the
// queue overflowed, dropping the oldest pending value.
func (p *Pair[T]) Write(buf *types.Buffer[T]) (dataLost bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.version++
	entry := versioned[T]{version: p.version, value: buf}

	if len(p.queue) >= p.capacity {
		// DropOldest: make room for the new value, matching the transport's
		// bounded-backpressure policy (§5).
		p.queue = p.queue[1:]
		dataLost = true
		p.dataLost = true
	}
	p.queue = append(p.queue, entry)
	p.notEmpty.Signal()
	return dataLost
}

// Close unblocks any goroutine waiting in ReadBlocking.
func (p *Pair[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.notEmpty.Broadcast()
}

// ReadBlocking waits until a new buffer is available (push mode) or performs
// an underlying transfer (poll mode); updates the locally visible buffer and
// version. release/reacquire are optional hooks the testable-mode decorator
// installs to give up the global cooperative lock across the wait.
func (p *Pair[T]) ReadBlocking(release, reacquire func()) (*types.Buffer[T], Version, bool) {
	if !p.pushMode {
		return p.readPoll()
	}

	p.mu.Lock()
	for len(p.queue) == 0 && !p.closed {
		if release != nil {
			p.mu.Unlock()
			release()
			p.mu.Lock()
		}
		if len(p.queue) == 0 && !p.closed {
			p.notEmpty.Wait()
		}
		if reacquire != nil {
			reacquire()
		}
	}
	if p.closed && len(p.queue) == 0 {
		p.mu.Unlock()
		return nil, 0, false
	}
	entry := p.queue[0]
	p.queue = p.queue[1:]
	p.current = &entry
	p.mu.Unlock()
	return entry.value, entry.version, true
}

// ReadNonBlocking returns whether a new buffer was consumed without
// blocking.
func (p *Pair[T]) ReadNonBlocking() (*types.Buffer[T], Version, bool) {
	if !p.pushMode {
		buf, v, ok, _ := p.tryPoll()
		return buf, v, ok
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, 0, false
	}
	entry := p.queue[0]
	p.queue = p.queue[1:]
	p.current = &entry
	return entry.value, entry.version, true
}

// ReadLatest drains the queue, returning only the most recent buffer; used
// at startup to pick up initial values.
func (p *Pair[T]) ReadLatest() (*types.Buffer[T], Version, bool) {
	if !p.pushMode {
		buf, v, ok, _ := p.tryPoll()
		return buf, v, ok
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, 0, false
	}
	entry := p.queue[len(p.queue)-1]
	p.queue = nil
	p.current = &entry
	return entry.value, entry.version, true
}

// Pending returns the number of buffered-but-unread versions.
func (p *Pair[T]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// DataLost reports whether the queue has ever overflowed since creation.
func (p *Pair[T]) DataLost() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataLost
}

func (p *Pair[T]) readPoll() (*types.Buffer[T], Version, bool) {
	buf, v, ok, err := p.tryPoll()
	if err != nil {
		return nil, 0, false
	}
	return buf, v, ok
}

func (p *Pair[T]) tryPoll() (*types.Buffer[T], Version, bool, error) {
	if p.pollFetch == nil {
		return nil, 0, false, nil
	}
	buf, err := p.pollFetch()
	if err != nil {
		return nil, 0, false, err
	}
	p.mu.Lock()
	p.version++
	v := p.version
	p.mu.Unlock()
	return buf, v, true, nil
}
