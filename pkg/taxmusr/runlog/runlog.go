// Package runlog persists generation and evaluation run bookkeeping: one row
// per run and one row per processed sample.
package runlog

import (
	"context"
	"time"
)

// Run is one generate or evaluate invocation.
type Run struct {
	ID         string
	Kind       string // "generate" or "evaluate"
	Domain     string
	Model      string
	Workflow   string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
}

// Sample is the outcome of one case within a run.
type Sample struct {
	RunID            string
	CaseID           string
	Status           string // "ok" or "failed"
	Verdict          string
	Error            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CreatedAt        time.Time
}

// Stats aggregates a run's samples.
type Stats struct {
	Samples     int
	Failed      int
	TotalTokens int
}

// Store persists runs and samples.
type Store interface {
	Close() error

	CreateRun(ctx context.Context, r Run) error
	FinishRun(ctx context.Context, id string, finishedAt time.Time) error
	GetRun(ctx context.Context, id string) (Run, bool, error)

	RecordSample(ctx context.Context, s Sample) error
	SamplesForRun(ctx context.Context, runID string) ([]Sample, error)
	RunStats(ctx context.Context, runID string) (Stats, error)
}
