package runtime

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ctrlmesh/ctrlmesh/network"
	"github.com/ctrlmesh/ctrlmesh/node"
)

// DumpConnections writes a plain-text listing of every resolved network to
// w: feeder, consumers, resolved type/count, trigger and latest observed
// version (§6 dumpConnections(), using network.LatestVersion() per
// SUPPLEMENTED FEATURES item 3). This is a diagnostic dump, not a library
// integration — XML/graph generation is an explicitly out-of-scope
// collaborator (§1).
func DumpConnections(w io.Writer, reg *network.Registry) error {
	nets := reg.Networks()
	sort.Slice(nets, func(i, j int) bool { return nets[i].Name < nets[j].Name })
	for _, n := range nets {
		feeder := "<none>"
		if f := n.Feeder(); f != nil {
			feeder = f.QualifiedName()
		}
		trigger := "<none>"
		if t := n.Trigger(); t != nil {
			trigger = t.QualifiedName()
		}
		if _, err := fmt.Fprintf(w, "network %q: type=%s count=%d feeder=%s trigger=%s version=%d\n",
			n.Name, n.ResolvedType(), n.ResolvedCount(), feeder, trigger, n.LatestVersion()); err != nil {
			return err
		}
		for _, c := range n.Consumers() {
			if _, err := fmt.Fprintf(w, "  consumer: %s (%s, %s)\n", c.QualifiedName(), c.Kind, c.Direction); err != nil {
				return err
			}
		}
	}
	return nil
}

// DumpConnectionGraph writes a Graphviz "dot" representation of the
// resolved network graph to path: one node per Node, one edge per
// feeder->consumer relationship, dashed edges for trigger relationships
// (§6 dumpConnectionGraph(path)).
func DumpConnectionGraph(path string, reg *network.Registry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "digraph ctrlmesh {"); err != nil {
		return err
	}
	ids := make(map[node.Identity]string)
	nextID := 0
	nodeID := func(n *node.Node) string {
		if id, ok := ids[n.ID]; ok {
			return id
		}
		id := fmt.Sprintf("n%d", nextID)
		nextID++
		ids[n.ID] = id
		return id
	}

	nets := reg.Networks()
	sort.Slice(nets, func(i, j int) bool { return nets[i].Name < nets[j].Name })
	for _, n := range nets {
		feeder := n.Feeder()
		if feeder == nil {
			continue
		}
		fID := nodeID(feeder)
		if _, err := fmt.Fprintf(f, "  %s [label=%q shape=box];\n", fID, feeder.QualifiedName()); err != nil {
			return err
		}
		for _, c := range n.Consumers() {
			cID := nodeID(c)
			if _, err := fmt.Fprintf(f, "  %s [label=%q];\n", cID, c.QualifiedName()); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(f, "  %s -> %s;\n", fID, cID); err != nil {
				return err
			}
		}
		if t := n.Trigger(); t != nil {
			tID := nodeID(t)
			if _, err := fmt.Fprintf(f, "  %s [label=%q shape=diamond];\n", tID, t.QualifiedName()); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(f, "  %s -> %s [style=dashed];\n", tID, fID); err != nil {
				return err
			}
		}
	}
	_, err = fmt.Fprintln(f, "}")
	return err
}

// xmlVariable is one entry in the generated variable list, keyed by public
// name (§6 "Persisted artefact").
type xmlVariable struct {
	XMLName   xml.Name `xml:"variable"`
	Name      string   `xml:"name,attr"`
	Type      string   `xml:"type,attr"`
	Direction string   `xml:"direction,attr"`
	Count     int      `xml:"count,attr"`
}

type xmlVariableList struct {
	XMLName   xml.Name      `xml:"variableList"`
	Variables []xmlVariable `xml:"variable"`
}

// GenerateXML serialises the resolved public-name -> type/direction/count
// mapping to path, stable across runs given the same declaration (§6
// generateXML(path)). Only ControlSystem nodes are exported: they are the
// only kind with a stable, externally meaningful public name.
func GenerateXML(path string, reg *network.Registry) error {
	var vars []xmlVariable
	for _, n := range reg.Networks() {
		for _, nd := range append(append([]*node.Node{}, n.Feeder()), n.Consumers()...) {
			if nd == nil || nd.Kind != node.KindControlSystem || nd.ControlSystem == nil {
				continue
			}
			vars = append(vars, xmlVariable{
				Name:      nd.ControlSystem.PublicName,
				Type:      nd.ValueType.String(),
				Direction: nd.Direction.String(),
				Count:     nd.ElementCount,
			})
		}
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(xmlVariableList{Variables: vars})
}
