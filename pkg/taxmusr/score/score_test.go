package score

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/steuerlab/taxmusr/internal/llm"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/dataset"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/validate"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/workflow"
)

// scriptedWorkflow replays canned replies keyed by narrative.
type scriptedWorkflow struct {
	replies map[string]workflow.Output
	errs    map[string]error
}

func (w *scriptedWorkflow) Name() string { return "scripted" }

func (w *scriptedWorkflow) Run(ctx context.Context, narrative, question string, options []string) (workflow.Output, error) {
	if err, ok := w.errs[narrative]; ok {
		return workflow.Output{}, err
	}
	out, ok := w.replies[narrative]
	if !ok {
		return workflow.Output{}, fmt.Errorf("no scripted reply for %q", narrative)
	}
	return out, nil
}

func makeCase(id, narrative, answer string, trace ...string) dataset.Case {
	return dataset.Case{
		ID:             id,
		Narrative:      narrative,
		Question:       "Go or stop?",
		Answer:         answer,
		Options:        []string{"go", "stop"},
		ReasoningTrace: trace,
	}
}

func TestRunScoresVerdicts(t *testing.T) {
	trace := "The case is ready, so the recommendation is to go."
	wf := &scriptedWorkflow{
		replies: map[string]workflow.Output{
			"n1": {Answer: "go", Reasoning: "case ready recommendation go", Usage: llm.Usage{CompletionTokens: 10, TotalTokens: 20}},
			"n2": {Answer: "stop", Reasoning: "seems risky", Usage: llm.Usage{CompletionTokens: 4, TotalTokens: 8}},
			"n3": {Answer: "go", Reasoning: "it felt right", Usage: llm.Usage{CompletionTokens: 2, TotalTokens: 4}},
		},
	}
	cases := []dataset.Case{
		makeCase("c1", "n1", "go", trace),
		makeCase("c2", "n2", "go", trace),
		makeCase("c3", "n3", "go", trace),
	}

	scorer := New(wf, Config{Workers: 2, Judge: validate.JudgeConfig{PathThreshold: 0.5}})
	results, summary, err := scorer.Run(context.Background(), cases)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	verdictByID := make(map[string]string)
	for _, r := range results {
		verdictByID[r.ID] = r.Prediction.Verdict
	}
	if v := verdictByID["c1"]; v != string(validate.VerdictCorrect) {
		t.Errorf("c1 verdict = %q", v)
	}
	if v := verdictByID["c2"]; v != string(validate.VerdictIncorrectAnswer) {
		t.Errorf("c2 verdict = %q", v)
	}
	if v := verdictByID["c3"]; v != string(validate.VerdictCorrectAnswerWrongPath) {
		t.Errorf("c3 verdict = %q", v)
	}

	// c1 and c3 both answered correctly.
	if want := 2.0 / 3.0; summary.Accuracy < want-1e-9 || summary.Accuracy > want+1e-9 {
		t.Errorf("Accuracy = %f, want %f", summary.Accuracy, want)
	}
	if summary.Usage.TotalTokens != 32 {
		t.Errorf("Usage = %+v", summary.Usage)
	}
	if want := (10.0 + 4.0 + 2.0) / 3.0; summary.MeanCompletionTokens != want {
		t.Errorf("MeanCompletionTokens = %f, want %f", summary.MeanCompletionTokens, want)
	}
}

func TestRunMalformedPredictionScoredUnparseable(t *testing.T) {
	wf := &scriptedWorkflow{
		errs: map[string]error{
			"n1": fmt.Errorf("workflow: no marker: %w", internalerr.ErrMalformedPrediction),
		},
	}
	scorer := New(wf, Config{})
	results, summary, err := scorer.Run(context.Background(), []dataset.Case{makeCase("c1", "n1", "go")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Prediction.Verdict != string(validate.VerdictUnparseable) {
		t.Errorf("verdict = %q", results[0].Prediction.Verdict)
	}
	if summary.Accuracy != 0 {
		t.Errorf("Accuracy = %f", summary.Accuracy)
	}
}

// cancellingWorkflow answers its first case, then cancels the run.
type cancellingWorkflow struct {
	cancel context.CancelFunc
	calls  atomic.Int64
}

func (w *cancellingWorkflow) Name() string { return "cancelling" }

func (w *cancellingWorkflow) Run(ctx context.Context, narrative, question string, options []string) (workflow.Output, error) {
	if w.calls.Add(1) == 1 {
		w.cancel()
		return workflow.Output{Answer: "go", Reasoning: "ready"}, nil
	}
	return workflow.Output{}, ctx.Err()
}

func TestRunKeepsScoredResultsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wf := &cancellingWorkflow{cancel: cancel}
	scorer := New(wf, Config{Workers: 1})

	results, summary, err := scorer.Run(ctx, []dataset.Case{
		makeCase("c1", "n1", "go"),
		makeCase("c2", "n2", "go"),
		makeCase("c3", "n3", "go"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Fatalf("results = %+v, want only the case scored before cancellation", results)
	}
	if summary.Scored != 1 || summary.Total != 3 {
		t.Errorf("Scored/Total = %d/%d", summary.Scored, summary.Total)
	}
}

func TestRunTolerantOfModelFailures(t *testing.T) {
	wf := &scriptedWorkflow{
		replies: map[string]workflow.Output{
			"ok": {Answer: "go", Reasoning: "fine"},
		},
		errs: map[string]error{
			"broken": errors.New("connection reset"),
		},
	}
	scorer := New(wf, Config{Workers: 2})
	results, summary, err := scorer.Run(context.Background(), []dataset.Case{
		makeCase("c1", "broken", "go"),
		makeCase("c2", "ok", "go"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c2" {
		t.Fatalf("results = %+v", results)
	}
	if len(summary.Failed) != 1 || !strings.Contains(summary.Failed[0].Error(), "c1") {
		t.Errorf("Failed = %v", summary.Failed)
	}
	if summary.Scored != 1 || summary.Total != 2 {
		t.Errorf("Scored/Total = %d/%d", summary.Scored, summary.Total)
	}
}
