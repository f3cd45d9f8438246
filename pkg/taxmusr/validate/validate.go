// Package validate checks reasoning graphs after construction and judges
// model predictions against them at evaluation time.
package validate

import (
	"fmt"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/graph"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/rules"
)

// Validator re-derives graphs against the same registry the builder used.
type Validator struct {
	registry rules.Registry
}

// New creates a validator over the given registry.
func New(reg rules.Registry) *Validator {
	return &Validator{registry: reg}
}

// CheckGraph runs the build-time invariant checks:
//
//	(a) the root's fact is re-derivable from the graph's leaves,
//	(b) every derived node's recorded antecedents are sufficient and
//	    necessary for its rule,
//	(c) the graph is acyclic and the root respects the depth bound.
//
// Idempotent: an accepted graph always passes again.
func (v *Validator) CheckGraph(g *graph.Graph, maxDepth int) error {
	root := g.Root()
	if root == nil {
		return fmt.Errorf("validate: %w: no root", internalerr.ErrInvalidGraph)
	}
	if _, err := g.TopoSort(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if root.Depth > maxDepth {
		return fmt.Errorf("validate: %w: root depth %d exceeds bound %d",
			internalerr.ErrInvalidGraph, root.Depth, maxDepth)
	}

	if err := v.checkAntecedents(g); err != nil {
		return err
	}
	return v.checkRederivable(g, root, maxDepth)
}

// checkAntecedents verifies each derived node against its rule: the recorded
// antecedents alone must satisfy the rule's shapes, and dropping any single
// one must break the match.
func (v *Validator) checkAntecedents(g *graph.Graph) error {
	byName := make(map[string]rules.Rule)
	for _, r := range v.registry.All() {
		byName[r.Name] = r
	}

	for _, n := range g.Nodes() {
		if n.IsLeaf() {
			continue
		}
		r, ok := byName[n.Rule]
		if !ok {
			return fmt.Errorf("validate: %w: node %s cites unknown rule %q",
				internalerr.ErrInvalidGraph, n.Fact.Key(), n.Rule)
		}

		ante := make([]fact.Fact, 0, len(n.Antecedents))
		for _, id := range n.Antecedents {
			a, ok := g.Node(id)
			if !ok {
				return fmt.Errorf("validate: %w: node %s has dangling antecedent %s",
					internalerr.ErrInvalidGraph, n.Fact.Key(), id)
			}
			ante = append(ante, a.Fact)
		}

		m, err := v.registry.Match(r, ante)
		if err != nil {
			return fmt.Errorf("validate: node %s: %w", n.Fact.Key(), err)
		}
		if m == nil {
			return fmt.Errorf("validate: %w: antecedents of %s do not satisfy rule %s",
				internalerr.ErrInvalidGraph, n.Fact.Key(), r.Name)
		}

		for drop := range ante {
			reduced := make([]fact.Fact, 0, len(ante)-1)
			reduced = append(reduced, ante[:drop]...)
			reduced = append(reduced, ante[drop+1:]...)
			m, err := v.registry.Match(r, reduced)
			if err == nil && m != nil {
				return fmt.Errorf("validate: %w: antecedent %s of %s is extraneous for rule %s",
					internalerr.ErrInvalidGraph, ante[drop].Key(), n.Fact.Key(), r.Name)
			}
		}
	}
	return nil
}

// checkRederivable forward-chains from the leaves with the builder's
// procedure and confirms the root's fact is reached.
func (v *Validator) checkRederivable(g *graph.Graph, root *graph.Node, maxDepth int) error {
	var closure []fact.Fact
	known := make(map[string]bool)
	for _, n := range g.Leaves() {
		if n.Fact.Tag == fact.TagDistractor {
			continue
		}
		closure = append(closure, n.Fact)
		known[n.Fact.Key()] = true
	}
	if known[root.Fact.Key()] {
		return nil
	}

	for d := 1; d <= maxDepth; d++ {
		added := false
		snapshot := append([]fact.Fact(nil), closure...)
		for _, r := range v.registry.All() {
			m, err := v.registry.Match(r, snapshot)
			if err != nil || m == nil {
				continue
			}
			value := r.Value(m.Binding)
			concl := fact.Fact{Predicate: r.Conclusion.Predicate, Value: value, Tag: fact.TagDerived}
			vars := make(map[string]string)
			for _, k := range r.Conclusion.Carry {
				if v, ok := m.Binding[k]; ok {
					vars[k] = v
				}
			}
			if r.Conclusion.BindAs != "" {
				vars[r.Conclusion.BindAs] = value
			}
			if len(vars) > 0 {
				concl.Vars = vars
			}
			if known[concl.Key()] {
				continue
			}
			known[concl.Key()] = true
			closure = append(closure, concl)
			added = true
			if concl.Key() == root.Fact.Key() && concl.Value == root.Fact.Value {
				return nil
			}
		}
		if !added {
			break
		}
	}
	return fmt.Errorf("validate: %w: root %s not re-derivable from leaves",
		internalerr.ErrInvalidGraph, root.Fact.Key())
}
