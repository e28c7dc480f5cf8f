// Package node defines VariableNetworkNode, the tagged endpoint record that
// the declarative graph API builds and the connection resolver consumes.
package node

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ctrlmesh/ctrlmesh/types"
)

// Kind tags what a Node represents.
type Kind int

const (
	KindApplication Kind = iota
	KindDevice
	KindControlSystem
	KindConstant
	KindTriggerReceiver
)

func (k Kind) String() string {
	switch k {
	case KindApplication:
		return "Application"
	case KindDevice:
		return "Device"
	case KindControlSystem:
		return "ControlSystem"
	case KindConstant:
		return "Constant"
	case KindTriggerReceiver:
		return "TriggerReceiver"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Direction says whether a node feeds or consumes. Device and ControlSystem
// nodes start unresolved; Connect does not change it, so a consuming one
// must have DirectionConsuming set explicitly (see IsFeeder).
type Direction int

const (
	DirectionBidirectionalUnresolved Direction = iota
	DirectionFeeding
	DirectionConsuming
)

func (d Direction) String() string {
	switch d {
	case DirectionFeeding:
		return "feeding"
	case DirectionConsuming:
		return "consuming"
	default:
		return "bidirectional-unresolved"
	}
}

// UpdateMode says whether a node is driven (push) or must be actively read
// (poll).
type UpdateMode int

const (
	ModePush UpdateMode = iota
	ModePoll
)

func (m UpdateMode) String() string {
	if m == ModePoll {
		return "poll"
	}
	return "push"
}

// DeviceInfo carries the kind-specific fields of a Device node.
type DeviceInfo struct {
	Alias        string
	RegisterPath string
}

// ControlSystemInfo carries the kind-specific fields of a ControlSystem node.
type ControlSystemInfo struct {
	PublicName string
}

// ConstantInfo carries the kind-specific fields of a Constant node.
type ConstantInfo struct {
	// RawValue holds the declared value as a float64; concrete accessors
	// truncate/convert at resolution time once the network's u is known.
	RawValue float64
}

// ApplicationInfo carries the kind-specific fields of an Application node.
type ApplicationInfo struct {
	Module      string
	Name        string
	Unit        string
	Description string
}

// Node is a single endpoint of a variable network.
type Node struct {
	ID Identity

	Kind          Kind
	Direction     Direction
	UpdateMode    UpdateMode
	ValueType     types.U
	ElementCount  int // 0 means "inherit" until resolved
	EliminateName bool

	Device        *DeviceInfo
	ControlSystem *ControlSystemInfo
	Constant      *ConstantInfo
	Application   *ApplicationInfo

	// TriggeredNetwork is set on a KindTriggerReceiver node: the network
	// (identified by name) it receives dispatched values from.
	TriggeredNetwork string

	// Trigger is the back-link to the node that drives this one externally,
	// if setExternalTrigger was called on the owning network.
	Trigger *Node
}

// Identity is a stable per-node identifier assigned at construction, used
// to key the ID map (testable-mode counters, debug names).
type Identity struct {
	UUID uuid.UUID
	Seq  int
}

var nextSeq int64

func newIdentity() Identity {
	seq := atomic.AddInt64(&nextSeq, 1)
	return Identity{UUID: uuid.New(), Seq: int(seq)}
}

// NewIdentity mints a fresh stable identity for a node synthesised during
// resolution (an internal transport-pair endpoint has no user-declared
// node of its own, but still needs an ID for debug names and testable-mode
// counters).
func NewIdentity() Identity { return newIdentity() }

func (id Identity) String() string {
	return fmt.Sprintf("#%d(%s)", id.Seq, id.UUID.String()[:8])
}

// NewDeviceNode declares a device-register endpoint.
func NewDeviceNode(alias, path string, mode UpdateMode, valueType types.U, count int) *Node {
	return &Node{
		ID:           newIdentity(),
		Kind:         KindDevice,
		Direction:    DirectionBidirectionalUnresolved,
		UpdateMode:   mode,
		ValueType:    valueType,
		ElementCount: count,
		Device:       &DeviceInfo{Alias: alias, RegisterPath: path},
	}
}

// NewControlSystemNode declares a control-system-exposed endpoint.
func NewControlSystemNode(publicName string, valueType types.U, count int) *Node {
	return &Node{
		ID:            newIdentity(),
		Kind:          KindControlSystem,
		Direction:     DirectionBidirectionalUnresolved,
		UpdateMode:    ModePush,
		ValueType:     valueType,
		ElementCount:  count,
		ControlSystem: &ControlSystemInfo{PublicName: publicName},
	}
}

// NewApplicationNode declares an application-owned endpoint.
func NewApplicationNode(module, name string, direction Direction, mode UpdateMode, unit, description string, valueType types.U, count int) *Node {
	return &Node{
		ID:           newIdentity(),
		Kind:         KindApplication,
		Direction:    direction,
		UpdateMode:   mode,
		ValueType:    valueType,
		ElementCount: count,
		Application:  &ApplicationInfo{Module: module, Name: name, Unit: unit, Description: description},
	}
}

// NewConstantNode declares a constant-valued endpoint. Constants are always
// feeders and never triggers.
func NewConstantNode(value float64, valueType types.U, count int) *Node {
	return &Node{
		ID:           newIdentity(),
		Kind:         KindConstant,
		Direction:    DirectionFeeding,
		UpdateMode:   ModePush,
		ValueType:    valueType,
		ElementCount: count,
		Constant:     &ConstantInfo{RawValue: value},
	}
}

// NewTriggerReceiverNode declares a node driven by a trigger fan-out on
// behalf of triggeredNetwork.
func NewTriggerReceiverNode(triggeredNetwork string, valueType types.U, count int) *Node {
	return &Node{
		ID:               newIdentity(),
		Kind:             KindTriggerReceiver,
		Direction:        DirectionConsuming,
		UpdateMode:       ModePush,
		ValueType:        valueType,
		ElementCount:     count,
		TriggeredNetwork: triggeredNetwork,
	}
}

// QualifiedName renders a debug/XML name for the node, honoring
// EliminateName on the owning module (applied by the caller, since Node does
// not know its owner chain).
func (n *Node) QualifiedName() string {
	switch n.Kind {
	case KindApplication:
		if n.Application != nil {
			return n.Application.Module + "/" + n.Application.Name
		}
	case KindDevice:
		if n.Device != nil {
			return n.Device.Alias + ":" + n.Device.RegisterPath
		}
	case KindControlSystem:
		if n.ControlSystem != nil {
			return n.ControlSystem.PublicName
		}
	case KindConstant:
		return fmt.Sprintf("constant%s", n.ID)
	case KindTriggerReceiver:
		return fmt.Sprintf("trigger-receiver(%s)%s", n.TriggeredNetwork, n.ID)
	}
	return n.ID.String()
}

// SetTrigger attaches an external trigger to this node. Rejects Constant
// nodes, matching §4.5 Case C's "using a Constant as a trigger is rejected".
func (n *Node) SetTrigger(trigger *Node) error {
	if trigger.Kind == KindConstant {
		return fmt.Errorf("constant node %s cannot be used as a trigger", trigger.QualifiedName())
	}
	n.Trigger = trigger
	return nil
}

// IsFeeder reports whether this node feeds its network: always for a
// Constant; for a Device or ControlSystem node unless its direction is
// consuming (unresolved counts as feeding); otherwise only when its
// direction is feeding.
func (n *Node) IsFeeder() bool {
	switch n.Kind {
	case KindConstant:
		return true
	case KindDevice, KindControlSystem:
		return n.Direction == DirectionFeeding || n.Direction == DirectionBidirectionalUnresolved
	default:
		return n.Direction == DirectionFeeding
	}
}
