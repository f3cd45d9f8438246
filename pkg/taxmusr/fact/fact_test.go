package fact

import (
	"testing"
)

func TestKeyIgnoresIDAndTag(t *testing.T) {
	a := Fact{ID: "x", Predicate: "married", Value: "true", Tag: TagGold}
	b := Fact{ID: "y", Predicate: "married", Value: "true", Tag: TagDerived}

	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}

func TestKeySortsVars(t *testing.T) {
	a := Fact{Predicate: "income", Vars: map[string]string{"who": "a", "amount": "80000"}}
	b := Fact{Predicate: "income", Vars: map[string]string{"amount": "80000", "who": "a"}}

	if a.Key() != b.Key() {
		t.Errorf("var order changed key: %q vs %q", a.Key(), b.Key())
	}
	want := "income|amount=80000|who=a"
	if a.Key() != want {
		t.Errorf("Key() = %q, want %q", a.Key(), want)
	}
}

func TestKeyDistinguishesBindings(t *testing.T) {
	a := Fact{Predicate: "income", Vars: map[string]string{"who": "a"}}
	b := Fact{Predicate: "income", Vars: map[string]string{"who": "b"}}

	if a.Key() == b.Key() {
		t.Error("different bindings collapsed to one key")
	}
}

func TestIsLeaf(t *testing.T) {
	cases := []struct {
		tag  Tag
		leaf bool
	}{
		{TagGold, true},
		{TagDistractor, true},
		{TagDerived, false},
	}
	for _, c := range cases {
		f := Fact{Predicate: "p", Tag: c.tag}
		if f.IsLeaf() != c.leaf {
			t.Errorf("IsLeaf() for %s = %v, want %v", c.tag, f.IsLeaf(), c.leaf)
		}
	}
}

func TestMinterUnique(t *testing.T) {
	m := NewMinter()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := m.Next()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
