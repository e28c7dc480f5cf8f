// Package runtime implements the thread and lifecycle manager (§4.6): it
// starts module threads and fan-out threads in the order the resolver
// requires, and performs the ordered shutdown that guarantees fan-outs
// outlive the modules reading from them. Grounded on
// component/lifecycle.go's State/LifecycleComponent split between
// Initialize (setup only), Start(ctx) (context-scoped run), and
// Stop(timeout) (graceful, timeout-bounded shutdown).
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctrlmesh/ctrlmesh/accessor"
	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/metric"
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/resolver"
	"github.com/ctrlmesh/ctrlmesh/testable"
)

// State mirrors component/lifecycle.go's State enum, narrowed to the
// states an Application actually passes through.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateShuttingDown
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AccessorInstaller is a type-erased setter the runtime calls once
// resolution completes: it locates one node's concrete accessor in the
// resolver's Bindings and installs it into the module's own typed Handle
// (§9 "Replace-in-place of application accessors" — the module keeps its
// Handle, only the back-end changes).
type AccessorInstaller interface {
	NodeID() node.Identity
	Install(bindings *resolver.Bindings) error
	// Prime performs at most one non-blocking transfer on the installed
	// accessor before the module thread starts, so a value already
	// buffered is not treated as a reaction to backlog (§4.6 (c) "one
	// readLatest() ... to pick up initial values without triggering user
	// reactions"). It must not loop: a Device or ControlSystem accessor's
	// DoReadTransfer always performs a real transfer and reports ok=true
	// unconditionally, so a loop waiting for ok=false never returns.
	Prime()
}

// HandleBinding is the concrete, type-safe AccessorInstaller a module
// builds for each of its declared accessors.
type HandleBinding[T comparable] struct {
	ID     node.Identity
	Handle *accessor.Handle[T]
}

// NewHandleBinding creates a HandleBinding for id, installing into handle.
func NewHandleBinding[T comparable](id node.Identity, handle *accessor.Handle[T]) HandleBinding[T] {
	return HandleBinding[T]{ID: id, Handle: handle}
}

func (b HandleBinding[T]) NodeID() node.Identity { return b.ID }

func (b HandleBinding[T]) Install(bindings *resolver.Bindings) error {
	a, ok := resolver.Lookup[T](bindings, b.ID)
	if !ok {
		return ctrlerrors.LogicError("runtime", "Install", fmt.Sprintf("no resolved accessor for node %s", b.ID))
	}
	b.Handle.Install(a)
	return nil
}

func (b HandleBinding[T]) Prime() {
	if !b.Handle.Installed() {
		return
	}
	// A single non-blocking transfer, matching §4.1's readLatest() "drains
	// the queue returning only the most recent buffer" contract: one call,
	// not a loop. A Device/ControlSystem accessor has no queue-empty signal
	// at all (every transfer reports ok=true), so looping here would never
	// terminate for a directly-attached Device feeder (§4.5 Case A).
	_, _, _, _ = b.Handle.DoReadTransfer(false)
}

// Module is the contract a user-defined application module satisfies. Its
// mainLoop body is explicitly out of scope (§1) — the runtime only owns
// starting and stopping the thread that runs it.
type Module interface {
	Name() string
	// Prepare runs once, before any fan-out or module thread starts
	// (§4.6 (a)). Use it for one-time setup that must happen before the
	// module's own thread begins reading and writing.
	Prepare() error
	// MainLoop is the module's thread body. It must return promptly when
	// ctx is done; a blocking read on a resolved accessor is the expected
	// interrupt point (§5 "Cancellation").
	MainLoop(ctx context.Context) error
	// AccessorBindings lists every declared accessor this module owns, so
	// the runtime can install resolved back-ends into them after
	// resolution and prime them before the module thread starts.
	AccessorBindings() []AccessorInstaller
}

// Application is the process-wide root of the owner tree (§3) and the
// single lifecycle manager for module and fan-out threads (§4.6). Only one
// instance may be live at a time (§9 "Global singleton Application").
type Application struct {
	log     *slog.Logger
	metrics *metric.Metrics

	mu        sync.Mutex
	modules   []Module
	resolved  *resolver.Result
	scheduler *testable.Scheduler

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	liveMu sync.Mutex
	live   bool
)

// New creates an Application. scheduler is nil unless testable mode is
// enabled (§4.7); metrics and log follow the resolver/fan-out convention of
// being passed in rather than constructed globally.
func New(log *slog.Logger, metrics *metric.Metrics, scheduler *testable.Scheduler) *Application {
	if log == nil {
		log = slog.Default()
	}
	a := &Application{log: log, metrics: metrics, scheduler: scheduler}
	a.state.Store(int32(StateCreated))
	return a
}

// AddModule registers a module to be prepared and started by Start. Must be
// called before Start.
func (a *Application) AddModule(m Module) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modules = append(a.modules, m)
}

// State returns the Application's current lifecycle state.
func (a *Application) State() State { return State(a.state.Load()) }

// Start implements §4.6's run(): install resolved accessors, prepare every
// module, activate fan-out threads, prime consuming accessors, then start
// one thread per module. Fan-outs are activated before modules because a
// module's first read may depend on one already running.
func (a *Application) Start(ctx context.Context, resolved *resolver.Result) error {
	liveMu.Lock()
	if live {
		liveMu.Unlock()
		return ctrlerrors.WrapInvalid(ctrlerrors.ErrAlreadyRunning, "runtime", "Start", "another Application instance is live")
	}
	live = true
	liveMu.Unlock()

	a.mu.Lock()
	a.resolved = resolved
	modules := append([]Module(nil), a.modules...)
	a.mu.Unlock()

	for _, m := range modules {
		for _, b := range m.AccessorBindings() {
			if err := b.Install(resolved.Bindings); err != nil {
				a.fail()
				return ctrlerrors.Wrap(err, "runtime", "Start", fmt.Sprintf("install accessors for module %s", m.Name()))
			}
		}
	}

	for _, m := range modules {
		if err := m.Prepare(); err != nil {
			a.fail()
			return ctrlerrors.Wrap(err, "runtime", "Start", fmt.Sprintf("prepare module %s", m.Name()))
		}
	}

	resolved.Activate()

	for _, m := range modules {
		for _, b := range m.AccessorBindings() {
			b.Prime()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for _, m := range modules {
		a.wg.Add(1)
		go a.runModule(runCtx, m)
	}

	a.state.Store(int32(StateRunning))
	if a.metrics != nil {
		a.metrics.RecordApplicationState(int(StateRunning))
	}
	a.log.Info("application started", "modules", len(modules))
	return nil
}

func (a *Application) runModule(ctx context.Context, m Module) {
	defer a.wg.Done()
	if a.scheduler != nil {
		a.scheduler.Lock()
	}
	if err := m.MainLoop(ctx); err != nil && ctx.Err() == nil {
		a.log.Error("module main loop returned an error", "module", m.Name(), "error", err)
	}
}

func (a *Application) fail() {
	a.state.Store(int32(StateFailed))
	if a.metrics != nil {
		a.metrics.RecordApplicationState(int(StateFailed))
	}
	liveMu.Lock()
	live = false
	liveMu.Unlock()
}

// Stop implements §4.6's shutdown(): release the testable lock if held,
// deactivate every fan-out (stopping its thread and unblocking any module
// mid-read on it), then interrupt (via context cancellation) and join every
// module thread, bounded by timeout.
func (a *Application) Stop(timeout time.Duration) error {
	if State(a.state.Load()) != StateRunning {
		return ctrlerrors.WrapInvalid(ctrlerrors.ErrNotRunning, "runtime", "Stop", "application is not running")
	}
	a.state.Store(int32(StateShuttingDown))
	if a.metrics != nil {
		a.metrics.RecordApplicationState(int(StateShuttingDown))
	}

	if a.scheduler != nil {
		a.scheduler.ReleaseIfHeld()
	}

	a.mu.Lock()
	resolved := a.resolved
	a.mu.Unlock()
	if resolved != nil {
		resolved.Deactivate()
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = ctrlerrors.WrapFatal(fmt.Errorf("shutdown timeout %s exceeded waiting for module threads", timeout), "runtime", "Stop", "join module threads")
		a.log.Error("shutdown timeout exceeded", "timeout", timeout)
	}

	a.state.Store(int32(StateStopped))
	if a.metrics != nil {
		a.metrics.RecordApplicationState(int(StateStopped))
	}
	liveMu.Lock()
	live = false
	liveMu.Unlock()
	a.log.Info("application stopped")
	return err
}
