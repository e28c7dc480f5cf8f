// Package resolver implements the connection resolver (§4.5): it turns a
// registry of fully-typed networks into concrete accessors installed into
// every application handle, plus the fan-outs and fan-out threads the
// runtime needs to activate. Grounded on the teacher's translate-then-
// validate engine pipeline (engine/engine.go, engine/validator.go),
// generalized from flow-to-component translation to network-to-accessor
// resolution, and dispatched per user type the way §9 asks: a type-map
// visitor over the closed set, never a dynamic downcast.
package resolver

import (
	"fmt"
	"sync"

	"github.com/ctrlmesh/ctrlmesh/accessor"
	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/fanout"
	"github.com/ctrlmesh/ctrlmesh/metric"
	"github.com/ctrlmesh/ctrlmesh/network"
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/runtimeconfig"
	"github.com/ctrlmesh/ctrlmesh/transport"
	"github.com/ctrlmesh/ctrlmesh/types"
)

// DeviceFactory is the device backend contract consumed during resolution
// (§6): given a register descriptor, return a typed backend. One method per
// concrete user type, since Go has no way to express a single generic
// interface method for a closed set of instantiations without a runtime
// type assertion — the eleven-method interface is the type-safe
// alternative §9 asks for ("avoid dynamic downcasts").
type DeviceFactory interface {
	Int8(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int8], error)
	Int16(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int16], error)
	Int32(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int32], error)
	Int64(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int64], error)
	Uint8(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint8], error)
	Uint16(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint16], error)
	Uint32(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint32], error)
	Uint64(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint64], error)
	Float32(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[float32], error)
	Float64(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[float64], error)
	Boolean8(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int8], error)
}

// ControlSystemFactory is the control-system adapter contract consumed
// during resolution (§6): create a typed process variable in the direction
// the network needs. feeding=true means this process is publishing values
// out (device/application -> control system); feeding=false means it is
// receiving them (control system -> device/application).
type ControlSystemFactory interface {
	Int8(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[int8], error)
	Int16(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[int16], error)
	Int32(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[int32], error)
	Int64(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[int64], error)
	Uint8(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[uint8], error)
	Uint16(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[uint16], error)
	Uint32(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[uint32], error)
	Uint64(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[uint64], error)
	Float32(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[float32], error)
	Float64(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[float64], error)
	Boolean8(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[int8], error)
}

// Bindings holds the concrete accessor installed for every node the
// resolver touched, keyed by stable identity. The declarative-API layer
// looks its own handles up here (via the generic Lookup helper) once
// resolution completes and installs them into the Handle the application
// module actually holds.
type Bindings struct {
	mu   sync.RWMutex
	byID map[node.Identity]any
}

func newBindings() *Bindings {
	return &Bindings{byID: make(map[node.Identity]any)}
}

func bind[T comparable](b *Bindings, id node.Identity, a accessor.Accessor[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[id] = a
}

// Lookup retrieves the concrete accessor installed for id, if the resolver
// has processed it and it resolved to user type T.
func Lookup[T comparable](b *Bindings, id node.Identity) (accessor.Accessor[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	a, ok := v.(accessor.Accessor[T])
	return a, ok
}

// activatable is satisfied by every fan-out kind that owns a dedicated
// goroutine (Threaded, Trigger) and by the pair readers and constant
// accessors the resolver hands to consumers, whose Deactivate unblocks a
// pending read. Feeding and Consuming are thread-less and never appear here
// (§5).
type activatable interface {
	Activate()
	Deactivate()
}

// triggerFanout is the subset of fanout.Trigger[T]'s API that does not
// depend on T, letting the resolver hold one shared instance per trigger
// source regardless of the resolved type of the networks it drives.
type triggerFanout interface {
	RegisterSubnetwork(name string, dispatch func() error)
	activatable
}

// Result is everything the runtime needs after resolution: the accessor
// bindings, every fan-out and consumer accessor to activate before module
// threads start and deactivate at shutdown, and any
// warnings accumulated along the way (unconnected nodes, etc).
type Result struct {
	Bindings    *Bindings
	Activatable []activatable
	Warnings    []string
}

// Activate activates every entry of Activatable (starting each fan-out's
// dedicated goroutine), in registration order (§4.6: fan-outs must be live
// before modules).
func (r *Result) Activate() {
	for _, a := range r.Activatable {
		a.Activate()
	}
}

// Deactivate stops every fan-out's dedicated goroutine and closes every
// consumer accessor in Activatable (§4.6 shutdown:
// internal fan-outs deactivate before module threads are interrupted).
func (r *Result) Deactivate() {
	for _, a := range r.Activatable {
		a.Deactivate()
	}
}

// Resolver runs the full §4.5 pipeline over a network registry.
type Resolver struct {
	cfg      runtimeconfig.Config
	metrics  *metric.Metrics
	devices  DeviceFactory
	control  ControlSystemFactory
	testable accessor.Coordinator
}

// New creates a Resolver. testable may be nil (production mode); when set,
// every push-type synchronized accessor the resolver creates for an
// application or trigger-receiver consumer is wrapped in a
// accessor.TestableDecorator.
func New(cfg runtimeconfig.Config, metrics *metric.Metrics, devices DeviceFactory, control ControlSystemFactory, testable accessor.Coordinator) *Resolver {
	return &Resolver{cfg: cfg, metrics: metrics, devices: devices, control: control, testable: testable}
}

// Resolve runs the full algorithm: optimisation pass, unconnected-node
// sweep, validation, then per-network resolution dispatched by resolved
// user type. allNodes is the full set of declared application nodes (used
// by the unconnected-node sweep to find nodes the registry never saw).
func (r *Resolver) Resolve(reg *network.Registry, allNodes []*node.Node) (*Result, error) {
	if err := reg.OptimizeDeviceFeeders(); err != nil {
		return nil, err
	}

	result := &Result{Bindings: newBindings()}
	connected := make(map[*node.Node]bool)
	for _, n := range reg.AllNodes() {
		connected[n] = true
	}
	for _, n := range allNodes {
		if connected[n] {
			continue
		}
		reg.AttachUnconnected(n, func(name string) {
			if r.cfg.WarnOnUnconnectedNode {
				result.Warnings = append(result.Warnings, fmt.Sprintf("unconnected node %s attached to a synthesised zero constant", name))
			}
		})
	}

	networks := reg.Networks()
	for _, net := range networks {
		if err := net.Validate(); err != nil {
			return nil, err
		}
	}

	triggerSources := make(map[node.Identity]bool)
	for _, net := range networks {
		if t := net.Trigger(); t != nil {
			triggerSources[t.ID] = true
		}
	}

	triggers := &triggerRegistry{byID: make(map[node.Identity]triggerFanout)}

	// Pass 1: networks that host a trigger source node must resolve first,
	// so the shared Trigger fan-out exists by the time a triggered network
	// looks it up in pass 2.
	var pass1, pass2 []*network.Network
	for _, net := range networks {
		hosts := false
		for _, n := range append(append([]*node.Node{}, net.Feeder()), net.Consumers()...) {
			if n != nil && triggerSources[n.ID] {
				hosts = true
			}
		}
		if hosts {
			pass1 = append(pass1, net)
		} else {
			pass2 = append(pass2, net)
		}
	}

	for _, net := range append(pass1, pass2...) {
		if err := r.resolveNetwork(net, result, triggers, triggerSources); err != nil {
			return nil, err
		}
	}

	return result, nil
}

type triggerRegistry struct {
	mu   sync.Mutex
	byID map[node.Identity]triggerFanout
}

func (tr *triggerRegistry) get(id node.Identity) (triggerFanout, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tf, ok := tr.byID[id]
	return tf, ok
}

func (tr *triggerRegistry) put(id node.Identity, tf triggerFanout) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.byID[id] = tf
}

// resolveNetwork dispatches to the generic resolveTyped instantiation
// matching net's resolved user type. This is the type-map visitor named in
// §4.5 step 5 and §9.
func (r *Resolver) resolveNetwork(net *network.Network, result *Result, triggers *triggerRegistry, triggerSources map[node.Identity]bool) error {
	switch net.ResolvedType() {
	case types.Int8:
		return resolveTyped[int8](net, r, result, triggers, triggerSources, r.devices.Int8, r.control.Int8, func(v float64) int8 { return int8(v) })
	case types.Int16:
		return resolveTyped[int16](net, r, result, triggers, triggerSources, r.devices.Int16, r.control.Int16, func(v float64) int16 { return int16(v) })
	case types.Int32:
		return resolveTyped[int32](net, r, result, triggers, triggerSources, r.devices.Int32, r.control.Int32, func(v float64) int32 { return int32(v) })
	case types.Int64:
		return resolveTyped[int64](net, r, result, triggers, triggerSources, r.devices.Int64, r.control.Int64, func(v float64) int64 { return int64(v) })
	case types.Uint8:
		return resolveTyped[uint8](net, r, result, triggers, triggerSources, r.devices.Uint8, r.control.Uint8, func(v float64) uint8 { return uint8(v) })
	case types.Uint16:
		return resolveTyped[uint16](net, r, result, triggers, triggerSources, r.devices.Uint16, r.control.Uint16, func(v float64) uint16 { return uint16(v) })
	case types.Uint32:
		return resolveTyped[uint32](net, r, result, triggers, triggerSources, r.devices.Uint32, r.control.Uint32, func(v float64) uint32 { return uint32(v) })
	case types.Uint64:
		return resolveTyped[uint64](net, r, result, triggers, triggerSources, r.devices.Uint64, r.control.Uint64, func(v float64) uint64 { return uint64(v) })
	case types.Float32:
		return resolveTyped[float32](net, r, result, triggers, triggerSources, r.devices.Float32, r.control.Float32, func(v float64) float32 { return float32(v) })
	case types.Float64:
		return resolveTyped[float64](net, r, result, triggers, triggerSources, r.devices.Float64, r.control.Float64, func(v float64) float64 { return v })
	case types.Boolean8:
		return resolveTyped[int8](net, r, result, triggers, triggerSources, r.devices.Boolean8, r.control.Boolean8, func(v float64) int8 {
			if v != 0 {
				return 1
			}
			return 0
		})
	default:
		return ctrlerrors.NotYetImplemented("resolver", "resolveNetwork", fmt.Sprintf("unresolved or unknown user type %s", net.ResolvedType()))
	}
}

type deviceCtor[T comparable] func(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[T], error)
type csCtor[T comparable] func(publicName string, count int, feeding bool, unit, description string) (accessor.ControlSystemAdapter[T], error)

// resolveTyped implements §4.5 step 4's three cases for one network,
// parameterised over its resolved user type T. convert renders a
// Constant node's declared float64 value into T, since a Constant's
// RawValue is stored untyped until the network's type is known.
func resolveTyped[T comparable](
	net *network.Network,
	r *Resolver,
	result *Result,
	triggers *triggerRegistry,
	triggerSources map[node.Identity]bool,
	buildDevice deviceCtor[T],
	buildCS csCtor[T],
	convert func(float64) T,
) error {
	feeder := net.Feeder()

	switch feeder.Kind {
	case node.KindConstant:
		return resolveConstantFeeder[T](net, r, result, buildDevice, buildCS, convert)
	case node.KindApplication:
		return resolveApplicationFeeder[T](net, r, result, triggers, triggerSources, buildDevice, buildCS)
	default: // Device, ControlSystem
		return resolveFixedFeeder[T](net, r, result, triggers, triggerSources, buildDevice, buildCS)
	}
}

// buildFeederAccessor constructs the concrete accessor for a Device or
// ControlSystem feeder node.
func buildFeederAccessor[T comparable](n *node.Node, buildDevice deviceCtor[T], buildCS csCtor[T]) (accessor.Accessor[T], error) {
	switch n.Kind {
	case node.KindDevice:
		wait := n.UpdateMode == node.ModePush && n.Direction == node.DirectionConsuming
		backend, err := buildDevice(n.Device.Alias, n.Device.RegisterPath, n.ElementCount, wait)
		if err != nil {
			return nil, ctrlerrors.WrapTransient(err, "resolver", "buildFeederAccessor", fmt.Sprintf("device %s:%s", n.Device.Alias, n.Device.RegisterPath))
		}
		return accessor.NewDeviceAccessor[T](n.ID, n.Device.Alias, n.Device.RegisterPath, backend), nil
	case node.KindControlSystem:
		feeding := n.Direction == node.DirectionConsuming
		adapter, err := buildCS(n.ControlSystem.PublicName, n.ElementCount, feeding, "", "")
		if err != nil {
			return nil, ctrlerrors.WrapTransient(err, "resolver", "buildFeederAccessor", n.ControlSystem.PublicName)
		}
		return accessor.NewControlSystemAccessor[T](n.ID, n.ControlSystem.PublicName, adapter, feeding), nil
	default:
		return nil, ctrlerrors.LogicError("resolver", "buildFeederAccessor", fmt.Sprintf("node kind %s cannot be a fixed-implementation feeder", n.Kind))
	}
}

// buildWriteConsumerAccessor constructs the concrete write-capable accessor
// for a Device or ControlSystem consumer node (a fan-out slave).
func buildWriteConsumerAccessor[T comparable](n *node.Node, buildDevice deviceCtor[T], buildCS csCtor[T]) (accessor.Accessor[T], error) {
	switch n.Kind {
	case node.KindDevice:
		backend, err := buildDevice(n.Device.Alias, n.Device.RegisterPath, n.ElementCount, false)
		if err != nil {
			return nil, ctrlerrors.WrapTransient(err, "resolver", "buildWriteConsumerAccessor", fmt.Sprintf("device %s:%s", n.Device.Alias, n.Device.RegisterPath))
		}
		return accessor.NewDeviceAccessor[T](n.ID, n.Device.Alias, n.Device.RegisterPath, backend), nil
	case node.KindControlSystem:
		adapter, err := buildCS(n.ControlSystem.PublicName, n.ElementCount, true, "", "")
		if err != nil {
			return nil, ctrlerrors.WrapTransient(err, "resolver", "buildWriteConsumerAccessor", n.ControlSystem.PublicName)
		}
		return accessor.NewControlSystemAccessor[T](n.ID, n.ControlSystem.PublicName, adapter, true), nil
	default:
		return nil, ctrlerrors.LogicError("resolver", "buildWriteConsumerAccessor", fmt.Sprintf("node kind %s is not a write-capable device/control-system consumer", n.Kind))
	}
}

// buildPushConsumer creates a fresh synchronized pair for an
// Application/TriggerReceiver consumer: the writer half is returned as the
// fan-out slave, the reader half (optionally testable-decorated) is bound
// into result.Bindings for the consumer's own identity. If the consumer is
// also an external trigger source elsewhere, the reader is additionally
// registered as a shared Trigger fan-out.
func buildPushConsumer[T comparable](n *node.Node, r *Resolver, result *Result, triggers *triggerRegistry, triggerSources map[node.Identity]bool, networkName string) accessor.Accessor[T] {
	pair := transport.NewPushPair[T](r.cfg.DefaultQueueDepth)
	writer := accessor.NewSyncPairAccessor[T](node.NewIdentity(), pair, false, true)
	reader := accessor.NewSyncPairAccessor[T](n.ID, pair, true, false)

	var readerAccessor accessor.Accessor[T] = reader
	if r.testable != nil {
		readerAccessor = accessor.NewTestableDecorator[T](reader, r.testable, n.ID)
	}
	bind[T](result.Bindings, n.ID, readerAccessor)
	// reader must deactivate before any Trigger fan-out wrapping it below,
	// so the Trigger's own blocking read on this pair is unblocked instead
	// of its Deactivate() waiting forever on <-t.done (§4.6, §5).
	result.Activatable = append(result.Activatable, reader)

	if triggerSources[n.ID] {
		tf := fanout.NewTrigger[T](networkName, r.metrics, readerAccessor)
		triggers.put(n.ID, tf)
		result.Activatable = append(result.Activatable, tf)
	}
	return writer
}

// resolveFixedFeeder implements §4.5 Case A: a Device or ControlSystem
// feeder, not a constant.
func resolveFixedFeeder[T comparable](net *network.Network, r *Resolver, result *Result, triggers *triggerRegistry, triggerSources map[node.Identity]bool, buildDevice deviceCtor[T], buildCS csCtor[T]) error {
	feeder := net.Feeder()
	consumers := net.Consumers()
	feederAccessor, err := buildFeederAccessor[T](feeder, buildDevice, buildCS)
	if err != nil {
		return err
	}

	if len(consumers) == 1 && net.Trigger() == nil && !triggerSources[consumers[0].ID] {
		consumer := consumers[0]
		switch consumer.Kind {
		case node.KindApplication, node.KindTriggerReceiver:
			bind[T](result.Bindings, consumer.ID, feederAccessor)
			return nil
		case node.KindDevice, node.KindControlSystem:
			consumerAccessor, err := buildWriteConsumerAccessor[T](consumer, buildDevice, buildCS)
			if err != nil {
				return err
			}
			th := fanout.NewThreaded[T](net.Name, r.metrics, feederAccessor)
			if err := th.AddSlave(consumerAccessor); err != nil {
				return err
			}
			result.Activatable = append(result.Activatable, th)
			return nil
		default:
			return ctrlerrors.NotYetImplemented("resolver", "resolveFixedFeeder", fmt.Sprintf("unsupported consumer kind %s", consumer.Kind))
		}
	}

	if net.Trigger() != nil {
		tf, ok := triggers.get(net.Trigger().ID)
		if !ok {
			return ctrlerrors.NotYetImplemented("resolver", "resolveFixedFeeder", "trigger source network was not resolved before its triggered network")
		}
		slaves, err := buildSlaves[T](consumers, r, result, triggers, triggerSources, net.Name, buildDevice, buildCS)
		if err != nil {
			return err
		}
		tf.RegisterSubnetwork(net.Name, fanout.BuildSubDispatch[T](feederAccessor, slaves))
		return nil
	}

	if feeder.UpdateMode == node.ModePush {
		th := fanout.NewThreaded[T](net.Name, r.metrics, feederAccessor)
		if err := attachThreadedSlaves[T](th, consumers, r, result, triggers, triggerSources, net.Name, buildDevice, buildCS); err != nil {
			return err
		}
		result.Activatable = append(result.Activatable, th)
		return nil
	}

	appConsumers := 0
	for _, c := range consumers {
		if c.Kind == node.KindApplication {
			appConsumers++
		}
	}
	if appConsumers > 1 {
		return ctrlerrors.IllegalVariableNetwork("resolver", "resolveFixedFeeder", fmt.Sprintf("network %s: poll feeder with %d application consumers needs a trigger", net.Name, appConsumers))
	}

	cf := fanout.NewConsuming[T](net.Name, r.metrics, feederAccessor)
	for _, consumer := range consumers {
		switch consumer.Kind {
		case node.KindApplication, node.KindTriggerReceiver:
			bind[T](result.Bindings, consumer.ID, consumingHandle[T]{cf})
		case node.KindDevice, node.KindControlSystem:
			slaveAccessor, err := buildWriteConsumerAccessor[T](consumer, buildDevice, buildCS)
			if err != nil {
				return err
			}
			cf.AddSlave(slaveAccessor)
		}
	}
	return nil
}

// consumingHandle adapts a *fanout.Consuming[T] (whose read is the pull-
// through-transfer itself) to the accessor.Accessor[T] contract so it can
// be bound directly into an application handle.
type consumingHandle[T comparable] struct {
	c *fanout.Consuming[T]
}

func (h consumingHandle[T]) PreRead() error  { return nil }
func (h consumingHandle[T]) PostRead() error { return nil }
func (h consumingHandle[T]) DoReadTransfer(blocking bool) (*types.Buffer[T], transport.Version, bool, error) {
	buf, ok, err := h.c.Read(blocking)
	return buf, 0, ok, err
}
func (h consumingHandle[T]) PreWrite() error  { return nil }
func (h consumingHandle[T]) PostWrite() error { return nil }
func (h consumingHandle[T]) DoWriteTransfer(*types.Buffer[T]) (bool, error) {
	return false, ctrlerrors.LogicError("resolver", "consumingHandle.DoWriteTransfer", "write on read-only consuming fan-out handle")
}
func (h consumingHandle[T]) IsReadable() bool                          { return true }
func (h consumingHandle[T]) IsWriteable() bool                         { return false }
func (h consumingHandle[T]) IsReadOnly() bool                          { return true }
func (h consumingHandle[T]) ID() node.Identity                         { return node.Identity{} }
func (h consumingHandle[T]) MayReplaceOther(accessor.Accessor[T]) bool { return false }

// attachThreadedSlaves builds and attaches each consumer's downstream
// accessor to th, in registration order.
func attachThreadedSlaves[T comparable](th *fanout.Threaded[T], consumers []*node.Node, r *Resolver, result *Result, triggers *triggerRegistry, triggerSources map[node.Identity]bool, networkName string, buildDevice deviceCtor[T], buildCS csCtor[T]) error {
	for _, consumer := range consumers {
		switch consumer.Kind {
		case node.KindApplication, node.KindTriggerReceiver:
			writer := buildPushConsumer[T](consumer, r, result, triggers, triggerSources, networkName)
			if err := th.AddSlave(writer); err != nil {
				return err
			}
		case node.KindDevice, node.KindControlSystem:
			slaveAccessor, err := buildWriteConsumerAccessor[T](consumer, buildDevice, buildCS)
			if err != nil {
				return err
			}
			if err := th.AddSlave(slaveAccessor); err != nil {
				return err
			}
		default:
			return ctrlerrors.NotYetImplemented("resolver", "attachThreadedSlaves", fmt.Sprintf("unsupported consumer kind %s", consumer.Kind))
		}
	}
	return nil
}

// buildSlaves builds one write-capable accessor per consumer, for use as a
// Trigger subnetwork's dispatch target list.
func buildSlaves[T comparable](consumers []*node.Node, r *Resolver, result *Result, triggers *triggerRegistry, triggerSources map[node.Identity]bool, networkName string, buildDevice deviceCtor[T], buildCS csCtor[T]) ([]accessor.Accessor[T], error) {
	slaves := make([]accessor.Accessor[T], 0, len(consumers))
	for _, consumer := range consumers {
		switch consumer.Kind {
		case node.KindApplication, node.KindTriggerReceiver:
			slaves = append(slaves, buildPushConsumer[T](consumer, r, result, triggers, triggerSources, networkName))
		case node.KindDevice, node.KindControlSystem:
			slaveAccessor, err := buildWriteConsumerAccessor[T](consumer, buildDevice, buildCS)
			if err != nil {
				return nil, err
			}
			slaves = append(slaves, slaveAccessor)
		default:
			return nil, ctrlerrors.NotYetImplemented("resolver", "buildSlaves", fmt.Sprintf("unsupported consumer kind %s", consumer.Kind))
		}
	}
	return slaves, nil
}

// resolveApplicationFeeder implements §4.5 Case B: the feeder is an
// application node.
func resolveApplicationFeeder[T comparable](net *network.Network, r *Resolver, result *Result, triggers *triggerRegistry, triggerSources map[node.Identity]bool, buildDevice deviceCtor[T], buildCS csCtor[T]) error {
	feeder := net.Feeder()
	consumers := net.Consumers()

	if len(consumers) == 1 && !triggerSources[consumers[0].ID] {
		consumer := consumers[0]
		pair := transport.NewPushPair[T](r.cfg.DefaultQueueDepth)
		writerAccessor := accessor.NewSyncPairAccessor[T](feeder.ID, pair, false, true)
		bind[T](result.Bindings, feeder.ID, writerAccessor)

		switch consumer.Kind {
		case node.KindApplication, node.KindTriggerReceiver:
			readerAccessor := accessor.NewSyncPairAccessor[T](consumer.ID, pair, true, false)
			var final accessor.Accessor[T] = readerAccessor
			if r.testable != nil {
				final = accessor.NewTestableDecorator[T](readerAccessor, r.testable, consumer.ID)
			}
			bind[T](result.Bindings, consumer.ID, final)
			// Direct two-node attach (§4.5 Case B): no fan-out owns this
			// pair, so the consumer's blocking read is only ever unblocked
			// at shutdown if the reader itself is registered here (§4.6).
			result.Activatable = append(result.Activatable, readerAccessor)
			return nil
		default:
			return ctrlerrors.NotYetImplemented("resolver", "resolveApplicationFeeder", "two-node application feeder into a non-application consumer requires a fan-out even with one consumer")
		}
	}

	feeding := fanout.NewFeeding[T](net.Name, r.metrics)
	bind[T](result.Bindings, feeder.ID, feedingHandle[T]{feeding})
	for _, consumer := range consumers {
		switch consumer.Kind {
		case node.KindApplication, node.KindTriggerReceiver:
			writer := buildPushConsumer[T](consumer, r, result, triggers, triggerSources, net.Name)
			feeding.AddSlave(writer)
		case node.KindDevice, node.KindControlSystem:
			slaveAccessor, err := buildWriteConsumerAccessor[T](consumer, buildDevice, buildCS)
			if err != nil {
				return err
			}
			feeding.AddSlave(slaveAccessor)
		default:
			return ctrlerrors.NotYetImplemented("resolver", "resolveApplicationFeeder", fmt.Sprintf("unsupported consumer kind %s", consumer.Kind))
		}
	}
	return nil
}

// feedingHandle adapts a *fanout.Feeding[T] to the accessor.Accessor[T]
// contract so the application feeder can hold it as its write endpoint.
type feedingHandle[T comparable] struct {
	f *fanout.Feeding[T]
}

func (h feedingHandle[T]) PreRead() error { return nil }
func (h feedingHandle[T]) DoReadTransfer(bool) (*types.Buffer[T], transport.Version, bool, error) {
	return nil, 0, false, ctrlerrors.LogicError("resolver", "feedingHandle.DoReadTransfer", "read on write-only feeding fan-out handle")
}
func (h feedingHandle[T]) PostRead() error { return nil }
func (h feedingHandle[T]) PreWrite() error { return nil }
func (h feedingHandle[T]) DoWriteTransfer(buf *types.Buffer[T]) (bool, error) {
	return h.f.Write(buf)
}
func (h feedingHandle[T]) PostWrite() error                          { return nil }
func (h feedingHandle[T]) IsReadable() bool                          { return false }
func (h feedingHandle[T]) IsWriteable() bool                         { return true }
func (h feedingHandle[T]) IsReadOnly() bool                          { return false }
func (h feedingHandle[T]) ID() node.Identity                         { return node.Identity{} }
func (h feedingHandle[T]) MayReplaceOther(accessor.Accessor[T]) bool { return false }

// resolveConstantFeeder implements §4.5 Case C.
func resolveConstantFeeder[T comparable](net *network.Network, r *Resolver, result *Result, buildDevice deviceCtor[T], buildCS csCtor[T], convert func(float64) T) error {
	feeder := net.Feeder()
	value := types.NewBuffer[T](1, net.ResolvedCount())
	rendered := convert(feeder.Constant.RawValue)
	for i := range value.Data[0] {
		value.Data[0][i] = rendered
	}

	for _, consumer := range net.Consumers() {
		switch consumer.Kind {
		case node.KindApplication, node.KindTriggerReceiver:
			constAccessor := accessor.NewConstantAccessor[T](consumer.ID, value.Clone())
			bind[T](result.Bindings, consumer.ID, constAccessor)
			// Registered so Result.Deactivate reaches it at shutdown and
			// releases a module thread blocked in DoReadTransfer(true) after
			// the one value is consumed (§4.2, §8 P5).
			result.Activatable = append(result.Activatable, constAccessor)
		case node.KindDevice, node.KindControlSystem:
			slaveAccessor, err := buildWriteConsumerAccessor[T](consumer, buildDevice, buildCS)
			if err != nil {
				return err
			}
			if err := slaveAccessor.PreWrite(); err != nil {
				return err
			}
			if _, err := slaveAccessor.DoWriteTransfer(value.Clone()); err != nil {
				return err
			}
			if err := slaveAccessor.PostWrite(); err != nil {
				return err
			}
		default:
			return ctrlerrors.NotYetImplemented("resolver", "resolveConstantFeeder", fmt.Sprintf("unsupported consumer kind %s", consumer.Kind))
		}
	}
	return nil
}
