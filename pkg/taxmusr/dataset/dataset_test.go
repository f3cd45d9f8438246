package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleCase(id string) Case {
	return Case{
		ID:              id,
		Narrative:       "My partner and I both work.",
		UnderlyingFacts: []string{"Person A and Person B are married."},
		RuleSignals:     []string{"Married couples may choose how they are assessed."},
		ReasoningTrace:  []string{"The couple meets the legal requirements for joint assessment."},
		ReasoningTree: []TreeNode{
			{ID: "n1", Predicate: "married", Value: "true", Tag: "gold", Text: "Person A and Person B are married."},
			{ID: "n2", Predicate: "eligible_joint", Value: "true", Tag: "derived", Text: "The couple meets the legal requirements for joint assessment.", Rule: "joint-eligibility", Antecedents: []string{"n1"}, Root: true},
		},
		Question:        "Should the couple opt for joint assessment or individual assessment to minimize their tax burden?",
		Answer:          "joint_assessment",
		Options:         []string{"joint_assessment", "individual_assessment"},
		Metadata:        Metadata{Domain: "joint_assessment", MaxDepth: 3, Model: "gpt-test", Temperature: 1, Seed: 42},
	}
}

func TestWriteThenReadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cases.jsonl")

	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if err := w.Write(sampleCase("c1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Appending must not clobber earlier records.
	w, err = OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter again: %v", err)
	}
	if err := w.Write(sampleCase("c2")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	cases, err := ReadCases(path)
	if err != nil {
		t.Fatalf("ReadCases: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(cases))
	}
	if cases[0].ID != "c1" || cases[1].ID != "c2" {
		t.Errorf("ids = %q, %q", cases[0].ID, cases[1].ID)
	}
	if cases[0].Metadata.Domain != "joint_assessment" {
		t.Errorf("metadata domain = %q", cases[0].Metadata.Domain)
	}
	// The serialized tree survives the round trip, edges included.
	tree := cases[0].ReasoningTree
	if len(tree) != 2 {
		t.Fatalf("ReasoningTree has %d nodes, want 2", len(tree))
	}
	if !tree[1].Root || tree[1].Rule != "joint-eligibility" {
		t.Errorf("root node = %+v", tree[1])
	}
	if len(tree[1].Antecedents) != 1 || tree[1].Antecedents[0] != tree[0].ID {
		t.Errorf("antecedents = %v", tree[1].Antecedents)
	}
}

func TestReadCasesJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.json")
	content := `[{"id":"a","answer":"flatrate","options":["pro-rata","flatrate"]},{"id":"b","answer":"pro-rata"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cases, err := ReadCases(path)
	if err != nil {
		t.Fatalf("ReadCases: %v", err)
	}
	if len(cases) != 2 || cases[0].ID != "a" || cases[1].Answer != "pro-rata" {
		t.Fatalf("unexpected cases: %+v", cases)
	}
}

func TestReadCasesSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	content := "{\"id\":\"a\"}\n\n{\"id\":\"b\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cases, err := ReadCases(path)
	if err != nil {
		t.Fatalf("ReadCases: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(cases))
	}
}

func TestReadCasesBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	if err := os.WriteFile(path, []byte("{\"id\":\"a\"}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCases(path); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestResultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	res := Result{
		Case: sampleCase("c1"),
		Prediction: Prediction{
			PredictedAnswer: "joint_assessment",
			PredictedTrace:  "the incomes are uneven",
			Verdict:         "correct",
		},
	}
	if err := w.Write(res); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	// Result lines parse as cases too: the prediction field is ignored.
	cases, err := ReadCases(path)
	if err != nil {
		t.Fatalf("ReadCases: %v", err)
	}
	if len(cases) != 1 || cases[0].Answer != "joint_assessment" {
		t.Fatalf("unexpected cases: %+v", cases)
	}
}
