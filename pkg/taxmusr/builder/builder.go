// Package builder expands a set of gold facts into a reasoning graph that
// derives a target answer, by level-by-level forward chaining over a rule
// registry.
package builder

import (
	"fmt"
	"math/rand"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/graph"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/rules"
)

// Config carries the explicit knobs for one build. Never ambient state.
type Config struct {
	// MaxDepth bounds the derivation depth of the root.
	MaxDepth int
	// Seed drives distractor selection. Fixed seed + fixed inputs gives a
	// structurally identical graph.
	Seed int64
	// MaxDistractors caps how many distractor leaves are injected.
	MaxDistractors int
}

// Builder derives reasoning graphs from a read-only registry. Safe for
// concurrent use: Build has no state beyond its arguments.
type Builder struct {
	registry rules.Registry
}

// New creates a builder over the given registry.
func New(reg rules.Registry) *Builder {
	return &Builder{registry: reg}
}

// Build seeds a graph with the gold facts, forward-chains rule applications
// level by level up to cfg.MaxDepth, and stops once a derived fact matches
// the target shape, which becomes the root. Distractor leaves are then
// injected from a seeded RNG. Returns ErrUnreachableAnswer when no rule
// chain reaches the target within the depth bound, and ErrRuleBindingConflict
// when a rule's antecedents cannot be bound consistently.
func (b *Builder) Build(gold []fact.Fact, target rules.Shape, distractors []fact.Fact, cfg Config) (*graph.Graph, error) {
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("builder: %w: max depth %d", internalerr.ErrInvalidGraph, cfg.MaxDepth)
	}

	g := graph.New()
	var root *graph.Node
	for _, f := range gold {
		f.Tag = fact.TagGold
		n, err := g.AddLeaf(f)
		if err != nil {
			return nil, fmt.Errorf("builder: seed gold facts: %w", err)
		}
		if target.Matches(n.Fact) {
			root = n
		}
	}

	for d := 1; d <= cfg.MaxDepth && root == nil; d++ {
		available := factsBelow(g, d)
		for _, r := range b.registry.All() {
			m, err := b.registry.Match(r, available)
			if err != nil {
				return nil, fmt.Errorf("builder: depth %d: %w", d, err)
			}
			if m == nil {
				continue
			}
			// Progress: at least one antecedent at depth d-1. A match
			// entirely on shallower facts already fired at an earlier
			// level and was deduplicated there.
			ids := make([]string, len(m.Antecedents))
			deepest := 0
			for i, af := range m.Antecedents {
				n, ok := g.Node(af.ID)
				if !ok {
					return nil, fmt.Errorf("builder: %w: matched fact %s not in graph", internalerr.ErrInvalidGraph, af.Key())
				}
				ids[i] = n.ID
				if n.Depth > deepest {
					deepest = n.Depth
				}
			}
			if deepest != d-1 {
				continue
			}

			concl := conclude(r, m)
			if _, dup := g.ByKey(concl.Key()); dup {
				continue
			}
			n, err := g.AddDerived(concl, r.Name, ids)
			if err != nil {
				return nil, fmt.Errorf("builder: depth %d: %w", d, err)
			}
			if target.Matches(n.Fact) {
				root = n
				break
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("builder: target %s within depth %d: %w",
			target.Predicate, cfg.MaxDepth, internalerr.ErrUnreachableAnswer)
	}
	if err := g.SetRoot(root.ID); err != nil {
		return nil, err
	}

	if err := injectDistractors(g, root, distractors, cfg); err != nil {
		return nil, err
	}
	return g, nil
}

// factsBelow collects the facts of all nodes at depth < d, insertion order.
func factsBelow(g *graph.Graph, d int) []fact.Fact {
	var out []fact.Fact
	for _, n := range g.Nodes() {
		if n.Depth < d && n.Fact.Tag != fact.TagDistractor {
			out = append(out, n.Fact)
		}
	}
	return out
}

// conclude materializes a rule's conclusion fact under the matched binding.
func conclude(r rules.Rule, m *rules.Match) fact.Fact {
	value := r.Value(m.Binding)
	vars := make(map[string]string, len(r.Conclusion.Carry)+1)
	for _, k := range r.Conclusion.Carry {
		if v, ok := m.Binding[k]; ok {
			vars[k] = v
		}
	}
	if r.Conclusion.BindAs != "" {
		vars[r.Conclusion.BindAs] = value
	}
	return fact.Fact{
		Predicate: r.Conclusion.Predicate,
		Vars:      vars,
		Value:     value,
		Tag:       fact.TagDerived,
		Text:      r.Conclusion.Render(value, m.Binding),
	}
}

// injectDistractors adds up to cfg.MaxDistractors distractor leaves chosen by
// the seeded RNG, then asserts that removing all of them leaves the root
// derivable.
func injectDistractors(g *graph.Graph, root *graph.Node, distractors []fact.Fact, cfg Config) error {
	if len(distractors) == 0 || cfg.MaxDistractors == 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	pool := append([]fact.Fact(nil), distractors...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	limit := cfg.MaxDistractors
	if limit < 0 || limit > len(pool) {
		limit = len(pool)
	}

	injected := make(map[string]bool)
	for _, f := range pool[:limit] {
		f.Tag = fact.TagDistractor
		if _, dup := g.ByKey(f.Key()); dup {
			continue
		}
		n, err := g.AddLeaf(f)
		if err != nil {
			return fmt.Errorf("builder: inject distractor: %w", err)
		}
		injected[n.ID] = true
	}

	if !g.Derivable(root.ID, injected) {
		return fmt.Errorf("builder: %w: distractors participate in root derivation", internalerr.ErrInvalidGraph)
	}
	return nil
}

// Signals returns the rule-signal texts for every rule used in the graph, in
// topological order and without repeats.
func Signals(g *graph.Graph, reg rules.Registry) ([]string, error) {
	sorted, err := g.TopoSort()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string)
	for _, r := range reg.All() {
		byName[r.Name] = r.Signal
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range sorted {
		if n.IsLeaf() || seen[n.Rule] {
			continue
		}
		seen[n.Rule] = true
		if s := byName[n.Rule]; s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
