// Package network implements VariableNetwork, the declarative connect()
// merge algorithm (§4.3), and the EntityOwner-style module hierarchy (§3,
// supplemented from original_source's ModuleGroup.h/EntityOwner.h).
package network

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/types"
)

// Network is one feeder node plus a set of consumer nodes, with a resolved
// user type and element count once §4.3 unification completes.
type Network struct {
	Name string

	feeder    *node.Node
	consumers []*node.Node

	resolvedType  types.U
	resolvedCount int

	trigger *node.Node
	created bool

	// latestVersion tracks the highest version number this network has
	// produced, aggregated across its lifetime (original_source's
	// getVersionNumber() causality helper).
	latestVersion uint64
}

// New creates an empty, unresolved network.
func New(name string) *Network {
	return &Network{Name: name, resolvedType: types.Any, created: true}
}

// Feeder returns the network's single feeder, or nil if none has been
// assigned yet.
func (n *Network) Feeder() *node.Node { return n.feeder }

// Consumers returns a copy of the consumer list.
func (n *Network) Consumers() []*node.Node {
	out := make([]*node.Node, len(n.consumers))
	copy(out, n.consumers)
	return out
}

// Trigger returns the network's external trigger, if any.
func (n *Network) Trigger() *node.Node { return n.trigger }

// ResolvedType returns the network's unified user type (types.Any if still
// unresolved).
func (n *Network) ResolvedType() types.U { return n.resolvedType }

// ResolvedCount returns the network's unified element count (0 if still
// unresolved).
func (n *Network) ResolvedCount() int { return n.resolvedCount }

// LatestVersion returns the highest version number observed so far,
// aggregating causality across every value this network has carried; used
// by dumpConnections() for diagnostics.
func (n *Network) LatestVersion() uint64 {
	return atomic.LoadUint64(&n.latestVersion)
}

// ObserveVersion records v as having been produced by this network if it is
// higher than any version seen before.
func (n *Network) ObserveVersion(v uint64) {
	for {
		cur := atomic.LoadUint64(&n.latestVersion)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&n.latestVersion, cur, v) {
			return
		}
	}
}

// addNode attaches nd to the network, unifying type/count and assigning it
// as feeder or consumer.
func (n *Network) addNode(nd *node.Node) error {
	if err := n.unify(nd); err != nil {
		return err
	}
	if nd.IsFeeder() {
		if n.feeder != nil && n.feeder != nd {
			return ctrlerrors.IllegalVariableNetwork("network", "addNode",
				fmt.Sprintf("network %s already has a feeder (%s), cannot add feeder %s",
					n.Name, n.feeder.QualifiedName(), nd.QualifiedName()))
		}
		n.feeder = nd
		return nil
	}
	for _, c := range n.consumers {
		if c == nd {
			return nil
		}
	}
	n.consumers = append(n.consumers, nd)
	return nil
}

func (n *Network) unify(nd *node.Node) error {
	resolvedType, ok := types.Resolve(n.resolvedType, nd.ValueType)
	if !ok {
		return ctrlerrors.IllegalParameter("network", "unify",
			fmt.Sprintf("network %s: incompatible types %s vs %s", n.Name, n.resolvedType, nd.ValueType))
	}
	resolvedCount := n.resolvedCount
	switch {
	case resolvedCount == 0:
		resolvedCount = nd.ElementCount
	case nd.ElementCount != 0 && nd.ElementCount != resolvedCount:
		return ctrlerrors.IllegalParameter("network", "unify",
			fmt.Sprintf("network %s: element count mismatch %d vs %d", n.Name, resolvedCount, nd.ElementCount))
	}
	n.resolvedType = resolvedType
	n.resolvedCount = resolvedCount
	nd.ValueType = resolvedType
	if nd.ElementCount == 0 {
		nd.ElementCount = resolvedCount
	}
	return nil
}

// merge absorbs other's nodes into n, used when connect() joins two
// already-populated networks or when the optimisation pass merges two
// device-fed networks.
func (n *Network) merge(other *Network) error {
	resolvedType, ok := types.Resolve(n.resolvedType, other.resolvedType)
	if !ok {
		return ctrlerrors.IllegalParameter("network", "merge",
			fmt.Sprintf("networks %s and %s have incompatible types", n.Name, other.Name))
	}
	resolvedCount := n.resolvedCount
	switch {
	case resolvedCount == 0:
		resolvedCount = other.resolvedCount
	case other.resolvedCount != 0 && other.resolvedCount != resolvedCount:
		return ctrlerrors.IllegalParameter("network", "merge",
			fmt.Sprintf("networks %s and %s: element count mismatch %d vs %d", n.Name, other.Name, resolvedCount, other.resolvedCount))
	}
	if other.feeder != nil {
		if n.feeder != nil && n.feeder != other.feeder {
			return ctrlerrors.IllegalVariableNetwork("network", "merge",
				fmt.Sprintf("cannot merge networks %s and %s: both have distinct feeders", n.Name, other.Name))
		}
		n.feeder = other.feeder
	}
	if other.trigger != nil {
		if n.trigger != nil && n.trigger != other.trigger {
			return ctrlerrors.IllegalVariableNetwork("network", "merge",
				fmt.Sprintf("cannot merge networks %s and %s: incompatible triggers", n.Name, other.Name))
		}
		n.trigger = other.trigger
	}
	for _, c := range other.consumers {
		found := false
		for _, existing := range n.consumers {
			if existing == c {
				found = true
				break
			}
		}
		if !found {
			n.consumers = append(n.consumers, c)
		}
	}
	n.resolvedType = resolvedType
	n.resolvedCount = resolvedCount
	for _, nd := range append([]*node.Node{n.feeder}, n.consumers...) {
		if nd != nil {
			_ = n.unify(nd)
		}
	}
	return nil
}

// SetExternalTrigger attaches trigger to the network; rejects a Constant
// trigger and a second, distinct trigger (I4: at most one external
// trigger).
func (n *Network) SetExternalTrigger(trigger *node.Node) error {
	if trigger.Kind == node.KindConstant {
		return ctrlerrors.IllegalVariableNetwork("network", "SetExternalTrigger",
			fmt.Sprintf("network %s: constant %s cannot be used as a trigger", n.Name, trigger.QualifiedName()))
	}
	if n.trigger != nil && n.trigger != trigger {
		return ctrlerrors.IllegalVariableNetwork("network", "SetExternalTrigger",
			fmt.Sprintf("network %s already has trigger %s", n.Name, n.trigger.QualifiedName()))
	}
	n.trigger = trigger
	return nil
}

// Validate checks §3 invariants I1-I6 plus "no feeder"/"no consumers".
func (n *Network) Validate() error {
	if n.feeder == nil {
		return ctrlerrors.IllegalVariableNetwork("network", "Validate", fmt.Sprintf("network %s has no feeder", n.Name))
	}
	if len(n.consumers) == 0 {
		return ctrlerrors.IllegalVariableNetwork("network", "Validate", fmt.Sprintf("network %s has no consumers", n.Name))
	}
	if !n.resolvedType.IsConcrete() {
		return ctrlerrors.IllegalVariableNetwork("network", "Validate", fmt.Sprintf("network %s has unresolved type", n.Name))
	}
	if n.resolvedCount <= 0 {
		return ctrlerrors.IllegalVariableNetwork("network", "Validate", fmt.Sprintf("network %s has unresolved element count", n.Name))
	}
	if n.trigger != nil && n.feeder.Kind == node.KindConstant {
		return ctrlerrors.IllegalVariableNetwork("network", "Validate", fmt.Sprintf("network %s: constant feeder cannot have a trigger", n.Name))
	}
	if n.feeder.UpdateMode == node.ModePoll && n.trigger == nil {
		appConsumers := 0
		for _, c := range n.consumers {
			if c.Kind == node.KindApplication {
				appConsumers++
			}
		}
		if appConsumers > 1 {
			return ctrlerrors.IllegalVariableNetwork("network", "Validate",
				fmt.Sprintf("network %s: poll-mode feeder with %d application consumers requires a trigger", n.Name, appConsumers))
		}
	}
	return nil
}

// Registry owns every network created during defineConnections and
// implements the connect(a, b) merge algorithm (§4.3). It is the "arena"
// that holds networks by stable name so nodes can reference their network
// without raw back-pointers.
type Registry struct {
	byName map[string]*Network
	byNode map[*node.Node]*Network
	seq    int
}

// NewRegistry creates an empty network registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Network), byNode: make(map[*node.Node]*Network)}
}

// Networks returns every network in the registry.
func (r *Registry) Networks() []*Network {
	out := make([]*Network, 0, len(r.byName))
	for _, n := range r.byName {
		out = append(out, n)
	}
	return out
}

// NetworkOf returns the network nd currently belongs to, if any.
func (r *Registry) NetworkOf(nd *node.Node) (*Network, bool) {
	n, ok := r.byNode[nd]
	return n, ok
}

// Connect implements connect(a, b) (§4.3): unify types/counts, then either
// merge into an existing network, extend one side's network with the other
// node, or create a new network.
func (r *Registry) Connect(a, b *node.Node) error {
	netA, hasA := r.byNode[a]
	netB, hasB := r.byNode[b]

	switch {
	case hasA && hasB:
		if netA == netB {
			return nil
		}
		if err := netA.merge(netB); err != nil {
			return err
		}
		for _, c := range netB.consumers {
			r.byNode[c] = netA
		}
		if netB.feeder != nil {
			r.byNode[netB.feeder] = netA
		}
		delete(r.byName, netB.Name)
		return nil

	case hasA && !hasB:
		if err := netA.addNode(b); err != nil {
			return err
		}
		r.byNode[b] = netA
		return nil

	case !hasA && hasB:
		if err := netB.addNode(a); err != nil {
			return err
		}
		r.byNode[a] = netB
		return nil

	default:
		r.seq++
		name := fmt.Sprintf("net-%d", r.seq)
		if a.Kind == node.KindApplication && a.Application != nil {
			name = a.Application.Module + "/" + a.Application.Name
		} else if b.Kind == node.KindApplication && b.Application != nil {
			name = b.Application.Module + "/" + b.Application.Name
		}
		n := New(name)
		if err := n.addNode(a); err != nil {
			return err
		}
		if err := n.addNode(b); err != nil {
			return err
		}
		r.byName[n.Name] = n
		r.byNode[a] = n
		r.byNode[b] = n
		return nil
	}
}

// AttachUnconnected wires nd into its own singleton network fed by a
// synthesised zero-valued Constant, per the unconnected-node sweep (§4.5
// step 2).
func (r *Registry) AttachUnconnected(nd *node.Node, warn func(qualifiedName string)) *Network {
	if _, ok := r.byNode[nd]; ok {
		return r.byNode[nd]
	}
	count := nd.ElementCount
	if count == 0 {
		count = 1
	}
	constant := node.NewConstantNode(0, nd.ValueType, count)
	r.seq++
	name := fmt.Sprintf("unconnected-%d", r.seq)
	if nd.Kind == node.KindApplication && nd.Application != nil {
		name = nd.Application.Module + "/" + nd.Application.Name
	}
	n := New(name)
	_ = n.addNode(constant)
	_ = n.addNode(nd)
	r.byName[n.Name] = n
	r.byNode[nd] = n
	r.byNode[constant] = n
	if warn != nil {
		warn(nd.QualifiedName())
	}
	return n
}

// deviceMergeKey groups device-fed networks eligible for the optimisation
// pass (§4.5 step 1): same alias, register path, direction, resolved type,
// resolved element count, and update mode.
type deviceMergeKey struct {
	alias, path string
	direction   node.Direction
	valueType   types.U
	count       int
	mode        node.UpdateMode
}

// OptimizeDeviceFeeders merges networks whose feeders are Device nodes
// referring to the same register under the same mode, re-parenting the
// discarded network's consumers. Sound only for Device feeders: every other
// feeder kind already shares its endpoint by construction (§4.5 step 1).
// Two device feeders with differing external triggers are never merged
// (Open Question 1, resolved conservatively in DESIGN.md).
func (r *Registry) OptimizeDeviceFeeders() error {
	groups := make(map[deviceMergeKey][]*Network)
	for _, n := range r.byName {
		f := n.feeder
		if f == nil || f.Kind != node.KindDevice || f.Device == nil {
			continue
		}
		key := deviceMergeKey{
			alias:     f.Device.Alias,
			path:      f.Device.RegisterPath,
			direction: f.Direction,
			valueType: n.resolvedType,
			count:     n.resolvedCount,
			mode:      f.UpdateMode,
		}
		groups[key] = append(groups[key], n)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		survivor := group[0]
		for _, dup := range group[1:] {
			if survivor.trigger != nil && dup.trigger != nil && survivor.trigger != dup.trigger {
				return ctrlerrors.IllegalVariableNetwork("network", "OptimizeDeviceFeeders",
					fmt.Sprintf("device %s:%s has two networks with different triggers, cannot merge", survivor.feeder.Device.Alias, survivor.feeder.Device.RegisterPath))
			}
			// dup's feeder is the same register as survivor's; the survivor's
			// node stands in for it so merge sees a single feeder.
			dupFeeder := dup.feeder
			dup.feeder = survivor.feeder
			if err := survivor.merge(dup); err != nil {
				return err
			}
			for _, c := range dup.consumers {
				r.byNode[c] = survivor
			}
			r.byNode[dupFeeder] = survivor
			delete(r.byName, dup.Name)
		}
	}
	return nil
}

// AllNodes returns every node currently reachable through the registry
// (feeders and consumers of every network), used by the unconnected-node
// sweep to compare against the full declared set.
func (r *Registry) AllNodes() []*node.Node {
	var out []*node.Node
	for _, n := range r.byName {
		if n.feeder != nil {
			out = append(out, n.feeder)
		}
		out = append(out, n.consumers...)
	}
	return out
}

// Module is a node in the EntityOwner tree: it owns nodes directly and may
// own submodules.
type Module struct {
	Name      string
	eliminate bool
	nodes     []*node.Node
	submods   []*Module
	parent    *Module
}

// NewModule creates a named module with no owner.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddNode registers nd as owned by m.
func (m *Module) AddNode(nd *node.Node) { m.nodes = append(m.nodes, nd) }

// AddSubmodule attaches child under m.
func (m *Module) AddSubmodule(child *Module) {
	child.parent = m
	m.submods = append(m.submods, child)
}

// EliminateHierarchy flags m so its own name is skipped when building
// qualified names for XML/debug output — wiring is unaffected, matching
// ModuleGroup.h's intent.
func (m *Module) EliminateHierarchy() { m.eliminate = true }

// QualifiedPath renders m's slash-separated path from the application root, skipping
// any ancestor flagged EliminateHierarchy.
func (m *Module) QualifiedPath() string {
	var parts []string
	for cur := m; cur != nil; cur = cur.parent {
		if !cur.eliminate {
			parts = append([]string{cur.Name}, parts...)
		}
	}
	return strings.Join(parts, "/")
}

// Walk visits m and every descendant module depth-first.
func (m *Module) Walk(visit func(*Module)) {
	visit(m)
	for _, s := range m.submods {
		s.Walk(visit)
	}
}

// Nodes returns every node owned directly by m (not submodules).
func (m *Module) Nodes() []*node.Node {
	out := make([]*node.Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}
