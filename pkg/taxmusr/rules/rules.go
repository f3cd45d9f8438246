// Package rules defines the rule template model and the registry capability
// the reasoning engine depends on. Rules are domain-supplied data; the engine
// never inspects their bodies beyond the Shape patterns and opaque callbacks.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
)

// Binding maps variable names to bound values accumulated while matching a
// rule's antecedents.
type Binding map[string]string

// Shape is a pattern over facts: a predicate plus an optional required value.
// An empty Value matches any value.
type Shape struct {
	Predicate string
	Value     string
}

// Matches reports whether a single fact satisfies the shape.
func (s Shape) Matches(f fact.Fact) bool {
	if s.Predicate != f.Predicate {
		return false
	}
	return s.Value == "" || s.Value == f.Value
}

// Conclusion describes the fact a rule produces.
type Conclusion struct {
	Predicate string
	// Value is the literal conclusion value; ignored when the owning rule
	// carries a Derive callback.
	Value string
	// Carry lists binding variables copied onto the conclusion fact.
	Carry []string
	// BindAs, when set, records the conclusion value as a variable of
	// that name on the conclusion fact, so later rules can consume it.
	BindAs string
	// Text is a template for the conclusion's natural-language form.
	// {value} and {name} placeholders are substituted from the binding.
	Text string
}

// Render produces the conclusion's natural-language text.
func (c Conclusion) Render(value string, b Binding) string {
	out := strings.ReplaceAll(c.Text, "{value}", value)
	for k, v := range b {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Rule is a named logical template: antecedent shapes entail a conclusion.
type Rule struct {
	Name        string
	Antecedents []Shape
	Conclusion  Conclusion
	// Priority breaks ties when multiple rules could fire; higher fires
	// first. Equal priorities fall back to registration order.
	Priority int
	// Signal is the rule text surfaced in the persisted case record.
	Signal string

	// When, if set, guards the match on the full binding.
	When func(Binding) bool
	// Derive, if set, computes the conclusion value from the binding
	// instead of Conclusion.Value.
	Derive func(Binding) string
}

// Value returns the conclusion value for a given binding.
func (r Rule) Value(b Binding) string {
	if r.Derive != nil {
		return r.Derive(b)
	}
	return r.Conclusion.Value
}

// Match is a successful rule application: the accumulated binding and the
// distinct facts, one per antecedent shape in order, that satisfied it.
type Match struct {
	Binding     Binding
	Antecedents []fact.Fact
}

// Registry is the domain capability the engine depends on.
type Registry interface {
	// Lookup returns rules concluding the given predicate, ordered by
	// priority descending, ties by registration order.
	Lookup(predicate string) []Rule
	// All returns every rule in the same order.
	All() []Rule
	// Match returns the binding and antecedent facts if the rule's shapes
	// are satisfied by the fact set. A nil Match with nil error means no
	// match. ErrRuleBindingConflict is returned when the shapes are
	// individually satisfiable but no variable-consistent assignment
	// exists.
	Match(r Rule, facts []fact.Fact) (*Match, error)
}

// Table is the standard Registry implementation.
type Table struct {
	rules []Rule // registration order
}

// NewTable builds a registry from rules in registration order.
func NewTable(rs ...Rule) *Table {
	t := &Table{}
	for _, r := range rs {
		t.Register(r)
	}
	return t
}

// Register appends a rule.
func (t *Table) Register(r Rule) {
	t.rules = append(t.rules, r)
}

// All returns every rule ordered by priority descending, ties by
// registration order.
func (t *Table) All() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Lookup returns the rules whose conclusion predicate matches, in All order.
func (t *Table) Lookup(predicate string) []Rule {
	var out []Rule
	for _, r := range t.All() {
		if r.Conclusion.Predicate == predicate {
			out = append(out, r)
		}
	}
	return out
}

// Match implements Registry. Pure function of its inputs.
func (t *Table) Match(r Rule, facts []fact.Fact) (*Match, error) {
	return MatchRule(r, facts)
}

// MatchRule assigns one distinct fact to each antecedent shape such that all
// variable bindings agree. Facts are tried in the given order, so the result
// is deterministic for a fixed fact ordering.
func MatchRule(r Rule, facts []fact.Fact) (*Match, error) {
	if len(r.Antecedents) == 0 {
		return nil, fmt.Errorf("rule %s: %w: no antecedents", r.Name, internalerr.ErrInvalidGraph)
	}

	// Every shape must be satisfiable on its own before we search for a
	// consistent assignment; otherwise it is a plain no-match.
	for _, s := range r.Antecedents {
		ok := false
		for _, f := range facts {
			if s.Matches(f) {
				ok = true
				break
			}
		}
		if !ok {
			return nil, nil
		}
	}

	used := make([]bool, len(facts))
	chosen := make([]fact.Fact, 0, len(r.Antecedents))
	sawConflict := false

	var assign func(shape int, b Binding) *Match
	assign = func(shape int, b Binding) *Match {
		if shape == len(r.Antecedents) {
			if r.When != nil && !r.When(b) {
				return nil
			}
			m := &Match{Binding: b, Antecedents: make([]fact.Fact, len(chosen))}
			copy(m.Antecedents, chosen)
			return m
		}
		s := r.Antecedents[shape]
		for i, f := range facts {
			if used[i] || !s.Matches(f) {
				continue
			}
			merged, ok := merge(b, f.Vars)
			if !ok {
				sawConflict = true
				continue
			}
			used[i] = true
			chosen = append(chosen, f)
			if m := assign(shape+1, merged); m != nil {
				return m
			}
			chosen = chosen[:len(chosen)-1]
			used[i] = false
		}
		return nil
	}

	if m := assign(0, Binding{}); m != nil {
		return m, nil
	}
	if sawConflict {
		return nil, fmt.Errorf("rule %s: %w", r.Name, internalerr.ErrRuleBindingConflict)
	}
	return nil, nil
}

// merge copies b and folds in vars. Returns false on a conflicting value for
// an already-bound variable.
func merge(b Binding, vars map[string]string) (Binding, bool) {
	out := make(Binding, len(b)+len(vars))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range vars {
		if prev, ok := out[k]; ok && prev != v {
			return nil, false
		}
		out[k] = v
	}
	return out, true
}
