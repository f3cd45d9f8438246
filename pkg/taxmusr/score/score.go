// Package score runs a prediction workflow over a dataset and judges each
// prediction against its gold case.
package score

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/steuerlab/taxmusr/internal/llm"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/dataset"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/validate"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/workflow"
)

// Config carries the knobs for one evaluation run.
type Config struct {
	// Workers bounds concurrent workflow calls. Zero means serial.
	Workers int
	// Judge configures verdict scoring. Zero value uses the defaults.
	Judge validate.JudgeConfig
}

// Summary aggregates one evaluation run.
type Summary struct {
	Total    int
	Scored   int
	Accuracy float64
	Verdicts map[validate.Verdict]int
	// MeanCompletionTokens is the mean over scored cases.
	MeanCompletionTokens float64
	Usage                llm.Usage
	// Failed holds per-case errors that prevented scoring.
	Failed []error
}

// Scorer evaluates cases with a workflow.
type Scorer struct {
	wf  workflow.Workflow
	cfg Config
}

// New creates a scorer.
func New(wf workflow.Workflow, cfg Config) *Scorer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scorer{wf: wf, cfg: cfg}
}

// Run evaluates every case. Per-case model failures are collected in the
// summary, not returned as the run error; only context cancellation aborts
// the run, and even then the returned results carry every case scored
// before the abort. A malformed reply still yields a result with an
// unparseable verdict.
func (s *Scorer) Run(ctx context.Context, cases []dataset.Case) ([]dataset.Result, Summary, error) {
	results := make([]*dataset.Result, len(cases))

	var mu sync.Mutex
	summary := Summary{
		Total:    len(cases),
		Verdicts: make(map[validate.Verdict]int),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Workers)
	for i, c := range cases {
		i, c := i, c
		eg.Go(func() error {
			res, usage, err := s.score(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			summary.Usage.Add(usage)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				summary.Failed = append(summary.Failed, fmt.Errorf("case %s: %w", c.ID, err))
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	waitErr := eg.Wait()

	var out []dataset.Result
	var correct int
	var completions []float64
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, *r)
		v := validate.Verdict(r.Prediction.Verdict)
		summary.Verdicts[v]++
		if v == validate.VerdictCorrect || v == validate.VerdictCorrectAnswerWrongPath {
			correct++
		}
		completions = append(completions, float64(r.Prediction.TokenUsage.CompletionTokens))
	}
	summary.Scored = len(out)
	if summary.Scored > 0 {
		summary.Accuracy = float64(correct) / float64(summary.Scored)
		summary.MeanCompletionTokens, _ = stats.Mean(completions)
	}
	return out, summary, waitErr
}

func (s *Scorer) score(ctx context.Context, c dataset.Case) (dataset.Result, llm.Usage, error) {
	out, err := s.wf.Run(ctx, c.Narrative, c.Question, c.Options)
	if err != nil && !errors.Is(err, internalerr.ErrMalformedPrediction) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return dataset.Result{}, out.Usage, err
		}
		return dataset.Result{}, out.Usage, fmt.Errorf("%w: %v", internalerr.ErrEvaluationFailed, err)
	}

	judgement := validate.Judge(c.Answer, c.ReasoningTrace, out.Answer, out.Reasoning, s.cfg.Judge)
	return dataset.Result{
		Case: c,
		Prediction: dataset.Prediction{
			PredictedAnswer: out.Answer,
			PredictedTrace:  out.Reasoning,
			TokenUsage:      out.Usage,
			Verdict:         string(judgement.Verdict),
		},
	}, out.Usage, nil
}
