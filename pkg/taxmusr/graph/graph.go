// Package graph holds the reasoning graph for one case: nodes wrapping facts,
// the rule applications that produced them, and the dependency edges between
// them. The structure is a DAG; the common case is tree-shaped.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
)

// Node wraps exactly one fact and records its derivation.
type Node struct {
	ID string
	Fact fact.Fact
	// Rule names the rule that produced this node; empty for leaves.
	Rule string
	// Antecedents are the ordered node IDs this node depends on.
	Antecedents []string
	// Depth is 0 for leaves, 1+max(antecedent depths) otherwise.
	Depth int
}

// IsLeaf reports whether the node was injected rather than derived.
func (n *Node) IsLeaf() bool {
	return len(n.Antecedents) == 0
}

// Graph owns all nodes for one case.
type Graph struct {
	nodes  map[string]*Node
	order  []string          // insertion order
	byKey  map[string]string // fact key -> node ID
	rootID string
	minter *fact.Minter
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:  make(map[string]*Node),
		byKey:  make(map[string]string),
		minter: fact.NewMinter(),
	}
}

// AddLeaf inserts a gold or distractor fact as a depth-0 node.
func (g *Graph) AddLeaf(f fact.Fact) (*Node, error) {
	if f.Tag == fact.TagDerived {
		return nil, fmt.Errorf("%w: leaf with derived tag %s", internalerr.ErrInvalidGraph, f.Key())
	}
	return g.insert(f, "", nil)
}

// AddDerived inserts a rule conclusion depending on existing nodes.
func (g *Graph) AddDerived(f fact.Fact, rule string, antecedents []string) (*Node, error) {
	if len(antecedents) == 0 {
		return nil, fmt.Errorf("%w: derived node %s without antecedents", internalerr.ErrInvalidGraph, f.Key())
	}
	for _, id := range antecedents {
		if _, ok := g.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: antecedent %s not in graph", internalerr.ErrInvalidGraph, id)
		}
	}
	return g.insert(f, rule, antecedents)
}

func (g *Graph) insert(f fact.Fact, rule string, antecedents []string) (*Node, error) {
	if _, dup := g.byKey[f.Key()]; dup {
		return nil, fmt.Errorf("%w: duplicate fact %s", internalerr.ErrInvalidGraph, f.Key())
	}
	if f.ID == "" {
		f.ID = g.minter.Next()
	}
	n := &Node{
		ID:          f.ID,
		Fact:        f,
		Rule:        rule,
		Antecedents: append([]string(nil), antecedents...),
	}
	for _, id := range antecedents {
		if d := g.nodes[id].Depth + 1; d > n.Depth {
			n.Depth = d
		}
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	g.byKey[f.Key()] = n.ID
	return n, nil
}

// SetRoot marks the answer-bearing node. Exactly one root per graph.
func (g *Graph) SetRoot(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: root %s not in graph", internalerr.ErrInvalidGraph, id)
	}
	if g.rootID != "" && g.rootID != id {
		return fmt.Errorf("%w: root already set", internalerr.ErrInvalidGraph)
	}
	g.rootID = id
	return nil
}

// Root returns the answer-bearing node, or nil if none is set.
func (g *Graph) Root() *Node {
	if g.rootID == "" {
		return nil
	}
	return g.nodes[g.rootID]
}

// Node looks up a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// ByKey looks up a node by its fact key.
func (g *Graph) ByKey(key string) (*Node, bool) {
	id, ok := g.byKey[key]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Leaves returns all depth-0 nodes in insertion order.
func (g *Graph) Leaves() []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// AtDepth returns nodes at exactly the given depth, in insertion order.
func (g *Graph) AtDepth(d int) []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if n.Depth == d {
			out = append(out, n)
		}
	}
	return out
}

// Facts returns every fact in insertion order.
func (g *Graph) Facts() []fact.Fact {
	out := make([]fact.Fact, 0, len(g.order))
	for _, n := range g.Nodes() {
		out = append(out, n.Fact)
	}
	return out
}

// TopoSort returns nodes leaves-first using Kahn's algorithm. A node is ready
// once all of its antecedents have been emitted; the ready queue preserves
// insertion order so the result is deterministic. Returns ErrInvalidGraph if
// a cycle prevents a complete ordering.
func (g *Graph) TopoSort() ([]*Node, error) {
	pending := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, id := range g.order {
		n := g.nodes[id]
		pending[id] = len(n.Antecedents)
		for _, a := range n.Antecedents {
			dependents[a] = append(dependents[a], id)
		}
	}

	var queue []string
	for _, id := range g.order {
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}

	out := make([]*Node, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, g.nodes[id])
		for _, dep := range dependents[id] {
			pending[dep]--
			if pending[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(out) != len(g.nodes) {
		return nil, fmt.Errorf("%w: cycle detected", internalerr.ErrInvalidGraph)
	}
	return out, nil
}

// Trace returns the linearized gold reasoning trace: the texts of all derived
// nodes in topological order, leaves to root.
func (g *Graph) Trace() ([]string, error) {
	sorted, err := g.TopoSort()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range sorted {
		if !n.IsLeaf() {
			out = append(out, n.Fact.Text)
		}
	}
	return out, nil
}

// Derivable reports whether target can still be derived when every node in
// the excluded set is removed. Used to prove distractors do not participate
// in any path to the root.
func (g *Graph) Derivable(target string, excluded map[string]bool) bool {
	if excluded[target] {
		return false
	}
	n, ok := g.nodes[target]
	if !ok {
		return false
	}
	if n.IsLeaf() {
		return true
	}
	for _, a := range n.Antecedents {
		if !g.Derivable(a, excluded) {
			return false
		}
	}
	return true
}

// Fingerprint serializes the graph's structure independent of node IDs:
// fact keys, values, tags, producing rules and antecedent fact keys in
// insertion order. Two graphs built from the same inputs under the same seed
// produce identical fingerprints.
func (g *Graph) Fingerprint() string {
	var b strings.Builder
	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "%s=%s[%s]", n.Fact.Key(), n.Fact.Value, n.Fact.Tag)
		if n.Rule != "" {
			fmt.Fprintf(&b, "<-%s(", n.Rule)
			keys := make([]string, 0, len(n.Antecedents))
			for _, a := range n.Antecedents {
				keys = append(keys, g.nodes[a].Fact.Key())
			}
			sort.Strings(keys)
			b.WriteString(strings.Join(keys, ","))
			b.WriteByte(')')
		}
		if n.ID == g.rootID {
			b.WriteString("*")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
