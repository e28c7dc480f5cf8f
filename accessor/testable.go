package accessor

import (
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/transport"
	"github.com/ctrlmesh/ctrlmesh/types"
)

// Coordinator is the subset of the testable-mode scheduler that a
// TestableDecorator needs: per-variable pending counters and the global
// cooperative lock's release/reacquire hooks (§4.7). The testable package
// implements this; accessor only depends on the interface to avoid an
// import cycle.
type Coordinator interface {
	OnWrite(id node.Identity)
	OnRead(id node.Identity)
	Release()
	Reacquire()
}

// TestableDecorator wraps a push-type transport boundary, integrating with
// the global cooperative lock: increments the coordinator's counter on
// write, decrements it on successful read, and releases the lock before a
// blocking read (reacquiring on wake). Poll-mode accessors are exempt by
// construction — callers simply do not wrap them.
type TestableDecorator[T comparable] struct {
	inner  Accessor[T]
	coord  Coordinator
	nodeID node.Identity
}

// NewTestableDecorator wraps inner, reporting write/read events for nodeID
// to coord.
func NewTestableDecorator[T comparable](inner Accessor[T], coord Coordinator, nodeID node.Identity) *TestableDecorator[T] {
	return &TestableDecorator[T]{inner: inner, coord: coord, nodeID: nodeID}
}

func (d *TestableDecorator[T]) PreRead() error { return d.inner.PreRead() }

func (d *TestableDecorator[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	if blocking {
		d.coord.Release()
		defer d.coord.Reacquire()
	}
	buf, v, ok, err := d.inner.DoReadTransfer(blocking)
	if ok {
		d.coord.OnRead(d.nodeID)
	}
	return buf, v, ok, err
}

func (d *TestableDecorator[T]) PostRead() error { return d.inner.PostRead() }
func (d *TestableDecorator[T]) PreWrite() error { return d.inner.PreWrite() }

func (d *TestableDecorator[T]) DoWriteTransfer(buf *types.Buffer[T]) (bool, error) {
	dataLost, err := d.inner.DoWriteTransfer(buf)
	if err == nil {
		d.coord.OnWrite(d.nodeID)
	}
	return dataLost, err
}

func (d *TestableDecorator[T]) PostWrite() error  { return d.inner.PostWrite() }
func (d *TestableDecorator[T]) IsReadable() bool  { return d.inner.IsReadable() }
func (d *TestableDecorator[T]) IsWriteable() bool { return d.inner.IsWriteable() }
func (d *TestableDecorator[T]) IsReadOnly() bool  { return d.inner.IsReadOnly() }
func (d *TestableDecorator[T]) ID() node.Identity { return d.inner.ID() }
func (d *TestableDecorator[T]) MayReplaceOther(o Accessor[T]) bool {
	return d.inner.MayReplaceOther(o)
}
