// Package fanout implements the four distributor kinds that a resolved
// network with more than one node needs: Feeding (application writes once,
// copied to N targets), Threaded (dedicated goroutine forwards from a
// pushing master), Consuming (lazy transfer on the application consumer's
// own read), and Trigger (one dispatch pass per tick of an external
// trigger). Grounded on the goroutine-lifecycle and metrics-recording style
// of a generic worker pool: a start/stop lifecycle guarded by a mutex, an
// atomic "active" flag checked on every loop iteration, and per-kind
// Prometheus counters instead of hand-rolled statistics.
package fanout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctrlmesh/ctrlmesh/accessor"
	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/metric"
	"github.com/ctrlmesh/ctrlmesh/types"
)

// Kind names a fan-out variety for metrics labeling and error messages.
type Kind string

const (
	KindFeeding   Kind = "feeding"
	KindThreaded  Kind = "threaded"
	KindConsuming Kind = "consuming"
	KindTrigger   Kind = "trigger"
)

// Feeding exposes a single write endpoint to an application feeder and
// copies each write to every registered slave. Thread-less: the write call
// itself performs the distribution.
type Feeding[T comparable] struct {
	network string
	metrics *metric.Metrics
	slaves  []accessor.Accessor[T]
}

// NewFeeding creates a Feeding fan-out for the given network name. Slaves
// are added with AddSlave before the first Write; the slave list is
// append-only once distribution starts.
func NewFeeding[T comparable](network string, metrics *metric.Metrics) *Feeding[T] {
	return &Feeding[T]{network: network, metrics: metrics}
}

// AddSlave registers a downstream accessor, in dispatch order.
func (f *Feeding[T]) AddSlave(a accessor.Accessor[T]) {
	f.slaves = append(f.slaves, a)
}

// Write distributes buf to every slave. The first slave shares buf
// directly; every other slave receives an independent clone, so that a
// downstream mutation cannot corrupt a sibling's view. preWrite is called
// on every slave only after every slave's buffer has been prepared, so no
// slave can be handed a half-filled source. Returns true if any slave's
// transfer reported dataLost.
func (f *Feeding[T]) Write(buf *types.Buffer[T]) (bool, error) {
	if len(f.slaves) == 0 {
		return false, ctrlerrors.LogicError("fanout", "Write", "feeding fan-out has no slaves")
	}
	start := time.Now()

	prepared := make([]*types.Buffer[T], len(f.slaves))
	for i := range f.slaves {
		if i == 0 {
			prepared[i] = buf
			continue
		}
		prepared[i] = buf.Clone()
	}

	for _, s := range f.slaves {
		if err := s.PreWrite(); err != nil {
			f.metrics.RecordFanOutError(f.network, string(KindFeeding))
			return false, ctrlerrors.Wrap(err, "fanout", "Write", "preWrite")
		}
	}

	var dataLost bool
	for i, s := range f.slaves {
		lost, err := s.DoWriteTransfer(prepared[i])
		if err != nil {
			f.metrics.RecordFanOutError(f.network, string(KindFeeding))
			return dataLost, err
		}
		dataLost = dataLost || lost
		if err := s.PostWrite(); err != nil {
			f.metrics.RecordFanOutError(f.network, string(KindFeeding))
			return dataLost, ctrlerrors.Wrap(err, "fanout", "Write", "postWrite")
		}
	}

	f.metrics.RecordFanOutDispatch(f.network, string(KindFeeding))
	f.metrics.RecordFanOutDispatchTime(f.network, string(KindFeeding), time.Since(start))
	return dataLost, nil
}

// Threaded runs a dedicated goroutine that blocks on the master accessor
// and forwards every value to all slaves, in registration order. AddSlave
// checks only that a slave is writeable; the array shapes of the slaves are
// not compared with each other or with the master.
type Threaded[T comparable] struct {
	network string
	metrics *metric.Metrics
	master  accessor.Accessor[T]
	slaves  []accessor.Accessor[T]

	mu      sync.Mutex
	active  int32
	started bool
	done    chan struct{}
}

// NewThreaded creates a Threaded fan-out reading from master.
func NewThreaded[T comparable](network string, metrics *metric.Metrics, master accessor.Accessor[T]) *Threaded[T] {
	return &Threaded[T]{network: network, metrics: metrics, master: master}
}

// AddSlave registers a write-capable downstream accessor.
func (t *Threaded[T]) AddSlave(a accessor.Accessor[T]) error {
	if !a.IsWriteable() {
		return ctrlerrors.LogicError("fanout", "AddSlave", "threaded fan-out slave must be writeable")
	}
	t.slaves = append(t.slaves, a)
	return nil
}

// Activate starts the forwarding goroutine. Idempotent.
func (t *Threaded[T]) Activate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	atomic.StoreInt32(&t.active, 1)
	t.done = make(chan struct{})
	go t.run()
}

// Deactivate stops the forwarding goroutine; the master's blocking read is
// interrupted the next time it wakes (a Close on the underlying transport
// unblocks it immediately).
func (t *Threaded[T]) Deactivate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	atomic.StoreInt32(&t.active, 0)
	<-t.done
	t.started = false
}

func (t *Threaded[T]) run() {
	defer close(t.done)
	for atomic.LoadInt32(&t.active) == 1 {
		start := time.Now()
		buf, _, ok, err := t.master.DoReadTransfer(true)
		if err != nil {
			t.metrics.RecordFanOutError(t.network, string(KindThreaded))
			continue
		}
		if !ok {
			return
		}
		var dataLost bool
		for _, s := range t.slaves {
			lost, err := s.DoWriteTransfer(buf)
			if err != nil {
				t.metrics.RecordFanOutError(t.network, string(KindThreaded))
				continue
			}
			dataLost = dataLost || lost
		}
		if dataLost {
			t.metrics.RecordDataLost(t.network)
		}
		t.metrics.RecordFanOutDispatch(t.network, string(KindThreaded))
		t.metrics.RecordFanOutDispatchTime(t.network, string(KindThreaded), time.Since(start))
	}
}

// Consuming lazily transfers on the sole application consumer's own read:
// the application reads directly from this fan-out, which pulls from the
// master and forwards the same buffer to every other slave mid-transfer.
// Exactly one application consumer may be attached; the resolver enforces
// this before wiring it in.
type Consuming[T comparable] struct {
	network string
	metrics *metric.Metrics
	master  accessor.Accessor[T]
	slaves  []accessor.Accessor[T]
}

// NewConsuming creates a Consuming fan-out pulling from master.
func NewConsuming[T comparable](network string, metrics *metric.Metrics, master accessor.Accessor[T]) *Consuming[T] {
	return &Consuming[T]{network: network, metrics: metrics, master: master}
}

// AddSlave registers a downstream accessor that receives the same buffer
// the application consumer reads.
func (c *Consuming[T]) AddSlave(a accessor.Accessor[T]) {
	c.slaves = append(c.slaves, a)
}

// Read performs the pull-through-transfer: reads master, forwards to every
// slave, then returns the value to the application caller.
func (c *Consuming[T]) Read(blocking bool) (*types.Buffer[T], bool, error) {
	start := time.Now()
	buf, _, ok, err := c.master.DoReadTransfer(blocking)
	if err != nil {
		c.metrics.RecordFanOutError(c.network, string(KindConsuming))
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	for _, s := range c.slaves {
		if _, err := s.DoWriteTransfer(buf.Clone()); err != nil {
			c.metrics.RecordFanOutError(c.network, string(KindConsuming))
		}
	}
	c.metrics.RecordFanOutDispatch(c.network, string(KindConsuming))
	c.metrics.RecordFanOutDispatchTime(c.network, string(KindConsuming), time.Since(start))
	return buf, true, nil
}

// Trigger collapses N independently triggered pulls into one dispatch pass
// per tick of its trigger network. One Trigger instance is shared by every
// subnetwork that names the same trigger source.
type Trigger[T comparable] struct {
	network string
	metrics *metric.Metrics
	source  accessor.Accessor[T]
	subs    []*genericSub

	mu      sync.Mutex
	active  int32
	started bool
	done    chan struct{}
}

// genericSub type-erases a subnetwork dispatch so a Trigger[T] driven by
// one user type can fan out to subnetworks resolved at other user types (a
// tick is a pure synchronization signal; it carries no payload of its own).
type genericSub struct {
	network  string
	dispatch func() error
}

// NewTrigger creates a Trigger fan-out whose tick source is source.
func NewTrigger[T comparable](network string, metrics *metric.Metrics, source accessor.Accessor[T]) *Trigger[T] {
	return &Trigger[T]{network: network, metrics: metrics, source: source}
}

// BuildSubDispatch closes over one subnetwork's feeder and slave set,
// producing the type-erased dispatch function RegisterSubnetwork needs.
// Kept as a free function (not a method) because Go methods cannot
// introduce their own type parameter distinct from the receiver's.
func BuildSubDispatch[S comparable](feeder accessor.Accessor[S], slaves []accessor.Accessor[S]) func() error {
	return func() error {
		buf, _, ok, err := feeder.DoReadTransfer(false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, s := range slaves {
			if _, err := s.DoWriteTransfer(buf.Clone()); err != nil {
				return err
			}
		}
		return nil
	}
}

// RegisterSubnetwork attaches a subnetwork driven by this trigger: on every
// tick, dispatch (built with BuildSubDispatch) reads that subnetwork's
// feeder once and copies it to that subnetwork's consumer set.
func (t *Trigger[T]) RegisterSubnetwork(name string, dispatch func() error) {
	t.subs = append(t.subs, &genericSub{network: name, dispatch: dispatch})
}

// Activate starts the trigger's dispatch goroutine.
func (t *Trigger[T]) Activate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	atomic.StoreInt32(&t.active, 1)
	t.done = make(chan struct{})
	go t.run()
}

// Deactivate stops the trigger's dispatch goroutine.
func (t *Trigger[T]) Deactivate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	atomic.StoreInt32(&t.active, 0)
	<-t.done
	t.started = false
}

func (t *Trigger[T]) run() {
	defer close(t.done)
	for atomic.LoadInt32(&t.active) == 1 {
		start := time.Now()
		_, _, ok, err := t.source.DoReadTransfer(true)
		if err != nil {
			t.metrics.RecordFanOutError(t.network, string(KindTrigger))
			continue
		}
		if !ok {
			return
		}
		for _, sub := range t.subs {
			if err := sub.dispatch(); err != nil {
				t.metrics.RecordFanOutError(sub.network, string(KindTrigger))
			}
		}
		t.metrics.RecordFanOutDispatch(t.network, string(KindTrigger))
		t.metrics.RecordFanOutDispatchTime(t.network, string(KindTrigger), time.Since(start))
	}
}
