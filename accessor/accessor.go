// Package accessor implements the uniform register accessor abstraction
// (§4.2): device-backed, synchronized-pair, control-system, and constant
// accessors all satisfy the same pre/do/post read and write protocol, with
// debug and testable-mode decorators layered on top.
package accessor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/transport"
	"github.com/ctrlmesh/ctrlmesh/types"
)

// Accessor is the uniform contract every concrete register implementation
// satisfies. T is the network's resolved user type.
type Accessor[T comparable] interface {
	PreRead() error
	DoReadTransfer(blocking bool) (buf *types.Buffer[T], version transport.Version, ok bool, err error)
	PostRead() error

	PreWrite() error
	DoWriteTransfer(buf *types.Buffer[T]) (dataLost bool, err error)
	PostWrite() error

	IsReadable() bool
	IsWriteable() bool
	IsReadOnly() bool
	ID() node.Identity

	// MayReplaceOther reports whether this accessor is interchangeable with
	// other for the purpose of the optimisation pass (§4.5 step 1). The
	// default is identity comparison; device accessors backed by the same
	// (alias, register) override this.
	MayReplaceOther(other Accessor[T]) bool
}

// baseAccessor centralizes ID/MayReplaceOther bookkeeping shared by every
// concrete accessor kind.
type baseAccessor[T comparable] struct {
	id node.Identity
}

func (b *baseAccessor[T]) ID() node.Identity { return b.id }

func (b *baseAccessor[T]) MayReplaceOther(other Accessor[T]) bool {
	return other != nil && other.ID() == b.id
}

// SyncPairAccessor wraps a value transport primitive pair (§4.1), used when
// the feeder is an application node connected directly to another
// application node.
type SyncPairAccessor[T comparable] struct {
	baseAccessor[T]
	pair      *transport.Pair[T]
	readable  bool
	writeable bool
	current   *types.Buffer[T]
}

// NewSyncPairAccessor wraps pair for one side of the connection: readable
// for the consuming side, writeable for the feeding side (an accessor is
// never both on a plain synchronized pair).
func NewSyncPairAccessor[T comparable](id node.Identity, pair *transport.Pair[T], readable, writeable bool) *SyncPairAccessor[T] {
	return &SyncPairAccessor[T]{baseAccessor: baseAccessor[T]{id: id}, pair: pair, readable: readable, writeable: writeable}
}

func (a *SyncPairAccessor[T]) PreRead() error  { return nil }
func (a *SyncPairAccessor[T]) PostRead() error { return nil }

func (a *SyncPairAccessor[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	if !a.readable {
		return nil, 0, false, ctrlerrors.LogicError("SyncPairAccessor", "DoReadTransfer", "read on write-only accessor")
	}
	if blocking {
		buf, v, ok := a.pair.ReadBlocking(nil, nil)
		return buf, v, ok, nil
	}
	buf, v, ok := a.pair.ReadNonBlocking()
	return buf, v, ok, nil
}

func (a *SyncPairAccessor[T]) PreWrite() error  { return nil }
func (a *SyncPairAccessor[T]) PostWrite() error { return nil }

func (a *SyncPairAccessor[T]) DoWriteTransfer(buf *types.Buffer[T]) (bool, error) {
	if !a.writeable {
		return false, ctrlerrors.LogicError("SyncPairAccessor", "DoWriteTransfer", "write on read-only accessor")
	}
	return a.pair.Write(buf), nil
}

func (a *SyncPairAccessor[T]) IsReadable() bool  { return a.readable }
func (a *SyncPairAccessor[T]) IsWriteable() bool { return a.writeable }
func (a *SyncPairAccessor[T]) IsReadOnly() bool  { return a.readable && !a.writeable }

// Activate is a no-op: a synchronized pair owns no goroutine of its own
// (§5, Feeding/Consuming fan-outs are thread-less); the pair is shared with
// whatever fan-out or module thread reads or writes it.
func (a *SyncPairAccessor[T]) Activate() {}

// Deactivate closes the underlying pair, unblocking any goroutine parked in
// DoReadTransfer(true) on either side of it (§4.6 shutdown, §5
// "Cancellation: ... interrupt points are the blocking reads"). The
// resolver registers the reader half into result.Activatable wherever a
// module or fan-out may be blocked reading it.
func (a *SyncPairAccessor[T]) Deactivate() { a.pair.Close() }

// ConstantAccessor implements the Constant contract (§4.2): the first
// blocking read returns the configured value; every subsequent blocking
// read blocks indefinitely (§8 P5), while a non-blocking read returns false
// immediately. Writes are accepted and ignored.
//
// The indefinite block is interrupted the same way a fan-out-mediated
// blocking read is (§4.6 shutdown: internal fan-outs deactivate before
// module threads are interrupted): ConstantAccessor satisfies the
// resolver's activatable interface with a no-op Activate (it owns no
// goroutine) and a Deactivate that releases any caller parked in
// DoReadTransfer(true). The resolver registers every application-facing
// ConstantAccessor it builds as Activatable so Result.Deactivate reaches it.
type ConstantAccessor[T comparable] struct {
	baseAccessor[T]
	mu       sync.Mutex
	value    *types.Buffer[T]
	consumed bool
	closed   chan struct{}
}

// NewConstantAccessor creates a Constant accessor exposing value exactly
// once.
func NewConstantAccessor[T comparable](id node.Identity, value *types.Buffer[T]) *ConstantAccessor[T] {
	return &ConstantAccessor[T]{baseAccessor: baseAccessor[T]{id: id}, value: value, closed: make(chan struct{})}
}

func (a *ConstantAccessor[T]) PreRead() error  { return nil }
func (a *ConstantAccessor[T]) PostRead() error { return nil }

func (a *ConstantAccessor[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	a.mu.Lock()
	if !a.consumed {
		a.consumed = true
		value := a.value
		a.mu.Unlock()
		return value, 1, true, nil
	}
	a.mu.Unlock()
	if !blocking {
		return nil, 0, false, nil
	}
	<-a.closed
	return nil, 0, false, nil
}

// Activate is a no-op: a Constant feeder owns no goroutine (§5, Feeding and
// Consuming fan-outs are thread-less).
func (a *ConstantAccessor[T]) Activate() {}

// Deactivate unblocks any caller parked in DoReadTransfer(true) after the
// one value has been consumed. Safe to call more than once.
func (a *ConstantAccessor[T]) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.closed:
	default:
		close(a.closed)
	}
}

func (a *ConstantAccessor[T]) PreWrite() error  { return nil }
func (a *ConstantAccessor[T]) PostWrite() error { return nil }

// DoWriteTransfer accepts and ignores the write, per the Constant contract.
func (a *ConstantAccessor[T]) DoWriteTransfer(*types.Buffer[T]) (bool, error) { return false, nil }

func (a *ConstantAccessor[T]) IsReadable() bool  { return true }
func (a *ConstantAccessor[T]) IsWriteable() bool { return true }
func (a *ConstantAccessor[T]) IsReadOnly() bool  { return false }

// DeviceBackend is the device backend contract consumed by DeviceAccessor
// (§6): given a register descriptor, perform the underlying transfer.
type DeviceBackend[T comparable] interface {
	Read() (*types.Buffer[T], error)
	Write(*types.Buffer[T]) error
	// SupportsWaitForNewData reports whether the driver can block until new
	// data arrives (push + consuming direction); otherwise polling is used.
	SupportsWaitForNewData() bool
}

// DeviceAccessor delegates to the external device library.
type DeviceAccessor[T comparable] struct {
	baseAccessor[T]
	alias   string
	path    string
	backend DeviceBackend[T]
}

// NewDeviceAccessor wraps backend for the register identified by
// (alias, path); alias/path participate in MayReplaceOther so the
// optimisation pass can recognize identical device registers.
func NewDeviceAccessor[T comparable](id node.Identity, alias, path string, backend DeviceBackend[T]) *DeviceAccessor[T] {
	return &DeviceAccessor[T]{baseAccessor: baseAccessor[T]{id: id}, alias: alias, path: path, backend: backend}
}

func (a *DeviceAccessor[T]) PreRead() error  { return nil }
func (a *DeviceAccessor[T]) PostRead() error { return nil }

func (a *DeviceAccessor[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	if blocking && !a.backend.SupportsWaitForNewData() {
		// Poll mode: a single synchronous read stands in for "wait".
	}
	buf, err := a.backend.Read()
	if err != nil {
		return nil, 0, false, ctrlerrors.WrapTransient(err, "DeviceAccessor", "DoReadTransfer", fmt.Sprintf("read %s:%s", a.alias, a.path))
	}
	return buf, 0, true, nil
}

func (a *DeviceAccessor[T]) PreWrite() error  { return nil }
func (a *DeviceAccessor[T]) PostWrite() error { return nil }

func (a *DeviceAccessor[T]) DoWriteTransfer(buf *types.Buffer[T]) (bool, error) {
	if err := a.backend.Write(buf); err != nil {
		return false, ctrlerrors.WrapTransient(err, "DeviceAccessor", "DoWriteTransfer", fmt.Sprintf("write %s:%s", a.alias, a.path))
	}
	return false, nil
}

func (a *DeviceAccessor[T]) IsReadable() bool  { return true }
func (a *DeviceAccessor[T]) IsWriteable() bool { return true }
func (a *DeviceAccessor[T]) IsReadOnly() bool  { return false }

// MayReplaceOther merges by (alias, path) rather than identity, which is
// what makes the optimisation pass sound for device feeders (§4.5 step 1).
func (a *DeviceAccessor[T]) MayReplaceOther(other Accessor[T]) bool {
	o, ok := other.(*DeviceAccessor[T])
	return ok && o.alias == a.alias && o.path == a.path
}

// ControlSystemAdapter is the control-system adapter contract consumed by
// ControlSystemAccessor (§6).
type ControlSystemAdapter[T comparable] interface {
	Publish(*types.Buffer[T]) error
	Receive(blocking bool) (*types.Buffer[T], bool, error)
}

// ControlSystemAccessor is exported by public name with the direction the
// adapter expects.
type ControlSystemAccessor[T comparable] struct {
	baseAccessor[T]
	publicName string
	adapter    ControlSystemAdapter[T]
	feeding    bool
}

// NewControlSystemAccessor wraps adapter for publicName.
func NewControlSystemAccessor[T comparable](id node.Identity, publicName string, adapter ControlSystemAdapter[T], feeding bool) *ControlSystemAccessor[T] {
	return &ControlSystemAccessor[T]{baseAccessor: baseAccessor[T]{id: id}, publicName: publicName, adapter: adapter, feeding: feeding}
}

func (a *ControlSystemAccessor[T]) PreRead() error  { return nil }
func (a *ControlSystemAccessor[T]) PostRead() error { return nil }

func (a *ControlSystemAccessor[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	buf, ok, err := a.adapter.Receive(blocking)
	if err != nil {
		return nil, 0, false, ctrlerrors.WrapTransient(err, "ControlSystemAccessor", "DoReadTransfer", a.publicName)
	}
	return buf, 0, ok, nil
}

func (a *ControlSystemAccessor[T]) PreWrite() error  { return nil }
func (a *ControlSystemAccessor[T]) PostWrite() error { return nil }

func (a *ControlSystemAccessor[T]) DoWriteTransfer(buf *types.Buffer[T]) (bool, error) {
	if err := a.adapter.Publish(buf); err != nil {
		return false, ctrlerrors.WrapTransient(err, "ControlSystemAccessor", "DoWriteTransfer", a.publicName)
	}
	return false, nil
}

func (a *ControlSystemAccessor[T]) IsReadable() bool  { return !a.feeding }
func (a *ControlSystemAccessor[T]) IsWriteable() bool { return a.feeding }
func (a *ControlSystemAccessor[T]) IsReadOnly() bool  { return !a.feeding }

// Handle is the thin, stable front-end an application module holds for one
// of its own variables. The resolver installs the concrete back-end into
// the handle exactly once, after resolution; application code never sees
// the back-end change, only the handle (§9 "Replace-in-place of
// application accessors").
type Handle[T comparable] struct {
	mu   sync.RWMutex
	impl Accessor[T]
}

// NewHandle creates an uninstalled handle. Calling any method before
// Install panics-free but returns a LogicError, since reading/writing an
// unresolved variable is a declaration-time mistake, not a runtime one.
func NewHandle[T comparable]() *Handle[T] { return &Handle[T]{} }

// Install binds impl as the handle's back-end. Called exactly once by the
// resolver; calling it again replaces the back-end, which the resolver
// itself never does once the graph is frozen (§3 Lifecycle).
func (h *Handle[T]) Install(impl Accessor[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.impl = impl
}

// Installed reports whether a back-end has been installed yet.
func (h *Handle[T]) Installed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.impl != nil
}

func (h *Handle[T]) backend() (Accessor[T], error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.impl == nil {
		return nil, ctrlerrors.LogicError("Handle", "backend", "variable read/written before resolution installed a back-end")
	}
	return h.impl, nil
}

func (h *Handle[T]) PreRead() error {
	b, err := h.backend()
	if err != nil {
		return err
	}
	return b.PreRead()
}

func (h *Handle[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	b, err := h.backend()
	if err != nil {
		return nil, 0, false, err
	}
	return b.DoReadTransfer(blocking)
}

func (h *Handle[T]) PostRead() error {
	b, err := h.backend()
	if err != nil {
		return err
	}
	return b.PostRead()
}

func (h *Handle[T]) PreWrite() error {
	b, err := h.backend()
	if err != nil {
		return err
	}
	return b.PreWrite()
}

func (h *Handle[T]) DoWriteTransfer(buf *types.Buffer[T]) (bool, error) {
	b, err := h.backend()
	if err != nil {
		return false, err
	}
	return b.DoWriteTransfer(buf)
}

func (h *Handle[T]) PostWrite() error {
	b, err := h.backend()
	if err != nil {
		return err
	}
	return b.PostWrite()
}

func (h *Handle[T]) IsReadable() bool {
	b, err := h.backend()
	return err == nil && b.IsReadable()
}

func (h *Handle[T]) IsWriteable() bool {
	b, err := h.backend()
	return err == nil && b.IsWriteable()
}

func (h *Handle[T]) IsReadOnly() bool {
	b, err := h.backend()
	return err == nil && b.IsReadOnly()
}

func (h *Handle[T]) ID() node.Identity {
	b, err := h.backend()
	if err != nil {
		return node.Identity{}
	}
	return b.ID()
}

func (h *Handle[T]) MayReplaceOther(other Accessor[T]) bool {
	b, err := h.backend()
	return err == nil && b.MayReplaceOther(other)
}

// DebugDecorator logs every transfer with a qualified name.
type DebugDecorator[T comparable] struct {
	inner Accessor[T]
	name  string
	log   *slog.Logger
}

// NewDebugDecorator wraps inner, logging transfers under qualifiedName.
func NewDebugDecorator[T comparable](inner Accessor[T], qualifiedName string, log *slog.Logger) *DebugDecorator[T] {
	return &DebugDecorator[T]{inner: inner, name: qualifiedName, log: log}
}

func (d *DebugDecorator[T]) PreRead() error { return d.inner.PreRead() }

func (d *DebugDecorator[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	buf, v, ok, err := d.inner.DoReadTransfer(blocking)
	d.log.Debug("read transfer", "variable", d.name, "version", v, "ok", ok, "err", err)
	return buf, v, ok, err
}

func (d *DebugDecorator[T]) PostRead() error { return d.inner.PostRead() }
func (d *DebugDecorator[T]) PreWrite() error { return d.inner.PreWrite() }

func (d *DebugDecorator[T]) DoWriteTransfer(buf *types.Buffer[T]) (bool, error) {
	dataLost, err := d.inner.DoWriteTransfer(buf)
	d.log.Debug("write transfer", "variable", d.name, "dataLost", dataLost, "err", err)
	return dataLost, err
}

func (d *DebugDecorator[T]) PostWrite() error                   { return d.inner.PostWrite() }
func (d *DebugDecorator[T]) IsReadable() bool                   { return d.inner.IsReadable() }
func (d *DebugDecorator[T]) IsWriteable() bool                  { return d.inner.IsWriteable() }
func (d *DebugDecorator[T]) IsReadOnly() bool                   { return d.inner.IsReadOnly() }
func (d *DebugDecorator[T]) ID() node.Identity                  { return d.inner.ID() }
func (d *DebugDecorator[T]) MayReplaceOther(o Accessor[T]) bool { return d.inner.MayReplaceOther(o) }
