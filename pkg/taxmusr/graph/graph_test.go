package graph

import (
	"errors"
	"testing"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
)

func gold(pred, val string) fact.Fact {
	return fact.Fact{Predicate: pred, Value: val, Tag: fact.TagGold, Text: pred + " is " + val}
}

func derived(pred, val string) fact.Fact {
	return fact.Fact{Predicate: pred, Value: val, Tag: fact.TagDerived, Text: pred + " is " + val}
}

// buildChain constructs: married, same_residence -> eligible -> answer
func buildChain(t *testing.T) (*Graph, *Node) {
	t.Helper()
	g := New()

	a, err := g.AddLeaf(gold("married", "true"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.AddLeaf(gold("same_residence", "true"))
	if err != nil {
		t.Fatal(err)
	}
	mid, err := g.AddDerived(derived("eligible_joint", "true"), "eligibility", []string{a.ID, b.ID})
	if err != nil {
		t.Fatal(err)
	}
	root, err := g.AddDerived(derived("recommendation", "joint_assessment"), "recommend", []string{mid.ID})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.SetRoot(root.ID); err != nil {
		t.Fatal(err)
	}
	return g, root
}

func TestDepthTracking(t *testing.T) {
	g, root := buildChain(t)

	if root.Depth != 2 {
		t.Errorf("root depth = %d, want 2", root.Depth)
	}
	for _, n := range g.Leaves() {
		if n.Depth != 0 {
			t.Errorf("leaf %s at depth %d", n.Fact.Predicate, n.Depth)
		}
	}
	if got := len(g.AtDepth(1)); got != 1 {
		t.Errorf("depth-1 nodes = %d, want 1", got)
	}
}

func TestDuplicateFactRejected(t *testing.T) {
	g := New()
	if _, err := g.AddLeaf(gold("married", "true")); err != nil {
		t.Fatal(err)
	}
	_, err := g.AddLeaf(gold("married", "true"))
	if !errors.Is(err, internalerr.ErrInvalidGraph) {
		t.Fatalf("err = %v, want ErrInvalidGraph", err)
	}
}

func TestDerivedNeedsExistingAntecedents(t *testing.T) {
	g := New()
	_, err := g.AddDerived(derived("x", "true"), "r", []string{"missing"})
	if !errors.Is(err, internalerr.ErrInvalidGraph) {
		t.Fatalf("err = %v, want ErrInvalidGraph", err)
	}
	_, err = g.AddDerived(derived("x", "true"), "r", nil)
	if !errors.Is(err, internalerr.ErrInvalidGraph) {
		t.Fatalf("err = %v, want ErrInvalidGraph for empty antecedents", err)
	}
}

func TestSingleRoot(t *testing.T) {
	g, root := buildChain(t)

	// Re-setting the same root is idempotent.
	if err := g.SetRoot(root.ID); err != nil {
		t.Fatalf("SetRoot same id: %v", err)
	}
	other := g.Leaves()[0]
	if err := g.SetRoot(other.ID); !errors.Is(err, internalerr.ErrInvalidGraph) {
		t.Fatalf("second root accepted: %v", err)
	}
}

func TestTopoSortLeavesFirst(t *testing.T) {
	g, root := buildChain(t)

	sorted, err := g.TopoSort()
	if err != nil {
		t.Fatal(err)
	}
	if len(sorted) != g.Len() {
		t.Fatalf("sorted %d of %d nodes", len(sorted), g.Len())
	}
	pos := make(map[string]int)
	for i, n := range sorted {
		pos[n.ID] = i
	}
	for _, n := range g.Nodes() {
		for _, a := range n.Antecedents {
			if pos[a] >= pos[n.ID] {
				t.Errorf("antecedent %s after dependent %s", a, n.ID)
			}
		}
	}
	if sorted[len(sorted)-1].ID != root.ID {
		t.Errorf("root not last in topological order")
	}
}

func TestTrace(t *testing.T) {
	g, _ := buildChain(t)

	trace, err := g.Trace()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"eligible_joint is true", "recommendation is joint_assessment"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, trace[i], want[i])
		}
	}
}

func TestDerivableExcludingDistractors(t *testing.T) {
	g, root := buildChain(t)

	d, err := g.AddLeaf(fact.Fact{Predicate: "children", Value: "2", Tag: fact.TagDistractor})
	if err != nil {
		t.Fatal(err)
	}

	excluded := map[string]bool{d.ID: true}
	if !g.Derivable(root.ID, excluded) {
		t.Error("removing distractor broke root derivability")
	}
	leaf := g.Leaves()[0]
	if g.Derivable(root.ID, map[string]bool{leaf.ID: true}) {
		t.Error("root derivable without a required leaf")
	}
}

func TestFingerprintIgnoresIDs(t *testing.T) {
	g1, _ := buildChain(t)
	g2, _ := buildChain(t)

	if g1.Fingerprint() != g2.Fingerprint() {
		t.Errorf("fingerprints differ:\n%s\n---\n%s", g1.Fingerprint(), g2.Fingerprint())
	}
}

func TestFingerprintSeesStructure(t *testing.T) {
	g1, _ := buildChain(t)
	g2, _ := buildChain(t)
	if _, err := g2.AddLeaf(fact.Fact{Predicate: "children", Value: "1", Tag: fact.TagDistractor}); err != nil {
		t.Fatal(err)
	}
	if g1.Fingerprint() == g2.Fingerprint() {
		t.Error("fingerprint blind to added node")
	}
}
