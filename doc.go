// Package ctrlmesh implements a dataflow runtime for control-system
// applications: a developer declares a graph of typed variables ("nodes")
// owned by user-defined modules, and the runtime resolves that declaration
// into a concrete set of in-process channels, fan-out distributors, and
// per-module worker threads.
//
// # Architecture
//
// Declaration happens once, in a module's defineConnections, by calling
// network.Registry.Connect on pairs of node.Node endpoints. Resolution then
// turns that declared graph into running infrastructure:
//
//	┌──────────────────────────────┐
//	│   node / network              │  declared graph: endpoints,
//	│   (declarative phase)         │  networks, owner tree
//	└──────────────┬────────────────┘
//	               ↓ resolver.Resolve
//	┌──────────────────────────────┐
//	│   accessor / fanout           │  concrete transports:
//	│   (resolved phase)            │  sync pairs, device/control-system
//	│                                │  accessors, fan-out distributors
//	└──────────────┬────────────────┘
//	               ↓ runtime.Application
//	┌──────────────────────────────┐
//	│   module threads              │  one goroutine per application
//	│                                │  module, running its main loop
//	└────────────────────────────────┘
//
// Four kinds of endpoint participate in a network: application code,
// hardware-device registers, an external control-system adapter, and
// constants. Exactly one endpoint per network feeds; the rest consume.
//
// # Resolution
//
// resolver.Resolve runs once, after the declarative phase closes:
//
//  1. Device-feeder networks that share (alias, path, direction, type,
//     count, mode) are merged.
//  2. Declared nodes with no network are attached to a synthesised
//     constant feeder.
//  3. Every resulting network is checked by network.Network.Validate
//     (a feeder, at least one consumer, resolved type, resolved count).
//  4. Each network is resolved per its feeder kind (device/control-system,
//     application, or constant) into the concrete accessor.Accessor
//     implementations and package fanout distributors the runtime will run.
//
// # Testable mode
//
// testable.Scheduler replaces free-running goroutine scheduling with a
// single cooperative lock and per-variable pending counters, so a test can
// call StepApplication and observe a quiescent system deterministically,
// or get ctrlerrors.TestsStalled with a listing of what never drained.
//
// # Framework packages
//
//   - types: the closed user-type set and the 2-D value buffer.
//   - node: declared endpoints (Node) and stable identity.
//   - network: networks, the Connect algorithm, and the module owner tree.
//   - transport: the synchronized feeder/consumer channel primitive.
//   - accessor: the uniform read/write contract over devices, sync pairs,
//     control-system variables, and constants, plus decorators.
//   - fanout: the four distributor kinds (Feeding, Threaded, Consuming,
//     Trigger).
//   - resolver: the connection resolver — declared graph to running
//     infrastructure.
//   - runtime: Application — start/stop ordering, initial-value priming,
//     diagnostic dumps (dumpConnections, dumpConnectionGraph, XML export).
//   - testable: the cooperative scheduler for deterministic tests.
//   - ctrlerrors: the error kinds named in the design (IllegalParameter,
//     IllegalVariableNetwork, NotYetImplemented, LogicError, TestsStalled).
//   - runtimeconfig: process-wide tunables outside the declared graph.
//   - metric: Prometheus instrumentation for transport, fan-out, and the
//     testable-mode scheduler.
//   - controlsystem/nats: a reference control-system adapter over NATS.
//
// # Usage
//
//	reg := network.NewRegistry()
//	daq := mymodules.NewDAQModule(log, reg)
//	ctl := mymodules.NewControlModule(log, reg)
//
//	// defineConnections, once, before resolving:
//	reg.Connect(daq.RawADC, ctl.FilteredInput)
//
//	r := resolver.New(cfg, metrics, deviceFactory, controlSystemFactory, nil)
//	resolved, err := r.Resolve(reg, reg.AllNodes())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	app := runtime.New(log, metrics, nil)
//	app.AddModule(daq)
//	app.AddModule(ctl)
//	if err := app.Start(ctx, resolved); err != nil {
//		log.Fatal(err)
//	}
//	defer app.Stop(5 * time.Second)
//
// # Non-goals
//
// Distribution across processes or hosts, persistent state, dynamic
// reconfiguration after startup, and general-purpose pub/sub beyond the
// statically declared graph are explicitly out of scope. The concrete
// hardware device backend and the production control-system bridge are
// collaborators this module consumes, not things it implements.
package ctrlmesh
