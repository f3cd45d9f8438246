package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sqlite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	mem := NewMemStore()
	t.Cleanup(func() { mem.Close() })

	return map[string]Store{"sqlite": sqlite, "memory": mem}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			run := Run{
				ID: "run-1", Kind: "generate", Domain: "joint_assessment",
				Model: "gpt-test", StartedAt: started,
			}
			if err := store.CreateRun(ctx, run); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			got, ok, err := store.GetRun(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("GetRun: ok=%v err=%v", ok, err)
			}
			if got.Domain != "joint_assessment" || !got.StartedAt.Equal(started) {
				t.Errorf("GetRun = %+v", got)
			}
			if !got.FinishedAt.IsZero() {
				t.Errorf("FinishedAt should be zero while in progress, got %v", got.FinishedAt)
			}

			finished := started.Add(5 * time.Minute)
			if err := store.FinishRun(ctx, "run-1", finished); err != nil {
				t.Fatalf("FinishRun: %v", err)
			}
			got, _, err = store.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetRun after finish: %v", err)
			}
			if !got.FinishedAt.Equal(finished) {
				t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
			}

			if err := store.FinishRun(ctx, "missing", finished); err == nil {
				t.Error("FinishRun on missing run should fail")
			}

			_, ok, err = store.GetRun(ctx, "missing")
			if err != nil || ok {
				t.Errorf("GetRun(missing): ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestSamplesAndStats(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.CreateRun(ctx, Run{ID: "run-2", Kind: "evaluate", StartedAt: started}); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			samples := []Sample{
				{RunID: "run-2", CaseID: "c1", Status: "ok", Verdict: "correct",
					PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, CreatedAt: started},
				{RunID: "run-2", CaseID: "c2", Status: "failed", Error: "model call failed",
					CreatedAt: started.Add(time.Second)},
				{RunID: "run-2", CaseID: "c3", Status: "ok", Verdict: "incorrect_answer",
					TotalTokens: 80, CreatedAt: started.Add(2 * time.Second)},
			}
			for _, s := range samples {
				if err := store.RecordSample(ctx, s); err != nil {
					t.Fatalf("RecordSample(%s): %v", s.CaseID, err)
				}
			}

			got, err := store.SamplesForRun(ctx, "run-2")
			if err != nil {
				t.Fatalf("SamplesForRun: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d samples, want 3", len(got))
			}
			if got[0].CaseID != "c1" || got[1].Error != "model call failed" {
				t.Errorf("samples = %+v", got)
			}

			stats, err := store.RunStats(ctx, "run-2")
			if err != nil {
				t.Fatalf("RunStats: %v", err)
			}
			if stats.Samples != 3 || stats.Failed != 1 || stats.TotalTokens != 200 {
				t.Errorf("stats = %+v", stats)
			}

			empty, err := store.RunStats(ctx, "no-such-run")
			if err != nil {
				t.Fatalf("RunStats(empty): %v", err)
			}
			if empty.Samples != 0 {
				t.Errorf("empty stats = %+v", empty)
			}
		})
	}
}
