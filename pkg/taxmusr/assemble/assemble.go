// Package assemble turns sampled domain facts into persisted cases: it builds
// and validates the reasoning graph, asks the narrative collaborator for the
// story text, and packages the record.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/steuerlab/taxmusr/internal/llm"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/builder"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/dataset"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/domain"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/graph"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/validate"
)

// Narrator generates the story text for a case. Implementations must be safe
// to retry on transient failure.
type Narrator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, llm.Usage, error)
}

// Config carries the knobs for one generation run.
type Config struct {
	MaxDepth int
	// MaxDistractors caps injected distractor leaves: -1 injects every
	// sampled distractor, 0 injects none.
	MaxDistractors int
	Temperature    float64
	Model          string
	// Seed is the master seed; sample i draws from Seed+i.
	Seed int64
	// Retries bounds regeneration attempts after a failed build.
	Retries int
	// Workers bounds concurrent narrative calls in Batch.
	Workers int
}

// Assembler produces cases for one domain.
type Assembler struct {
	dom       domain.Domain
	builder   *builder.Builder
	validator *validate.Validator
	narrator  Narrator
	cfg       Config
}

// New creates an assembler. Zero Retries defaults to 3 attempts, zero
// Workers to serial execution, zero MaxDepth to the domain default.
func New(dom domain.Domain, narrator Narrator, cfg Config) *Assembler {
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = dom.DefaultMaxDepth()
	}
	return &Assembler{
		dom:       dom,
		builder:   builder.New(dom.Registry()),
		validator: validate.New(dom.Registry()),
		narrator:  narrator,
		cfg:       cfg,
	}
}

// Assemble generates one case from the given seed. Build failures
// (unreachable answer, binding conflict, invalid graph) are retried with a
// fresh sample up to the configured attempt count; narrative failures are
// not retried here beyond the client's own policy.
func (a *Assembler) Assemble(ctx context.Context, seed int64) (dataset.Case, llm.Usage, error) {
	var usage llm.Usage
	var lastErr error

	for attempt := 0; attempt < a.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return dataset.Case{}, usage, err
		}
		attemptSeed := seed + int64(attempt)*1_000_003
		c, u, err := a.once(ctx, attemptSeed, seed)
		usage.Add(u)
		if err == nil {
			return c, usage, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return dataset.Case{}, usage, fmt.Errorf("assemble: seed %d: %w", seed, lastErr)
}

func (a *Assembler) once(ctx context.Context, attemptSeed, seed int64) (dataset.Case, llm.Usage, error) {
	rng := rand.New(rand.NewSource(attemptSeed))
	s := a.dom.Sample(rng)

	g, err := a.builder.Build(s.Gold, s.Target, s.Distractors, builder.Config{
		MaxDepth:       a.cfg.MaxDepth,
		Seed:           attemptSeed,
		MaxDistractors: a.cfg.MaxDistractors,
	})
	if err != nil {
		return dataset.Case{}, llm.Usage{}, err
	}
	if err := a.validator.CheckGraph(g, a.cfg.MaxDepth); err != nil {
		return dataset.Case{}, llm.Usage{}, err
	}

	trace, err := g.Trace()
	if err != nil {
		return dataset.Case{}, llm.Usage{}, err
	}
	signals, err := builder.Signals(g, a.dom.Registry())
	if err != nil {
		return dataset.Case{}, llm.Usage{}, err
	}
	var underlying []string
	for _, n := range g.Leaves() {
		underlying = append(underlying, n.Fact.Text)
	}
	tree, err := treeNodes(g)
	if err != nil {
		return dataset.Case{}, llm.Usage{}, err
	}

	narrative, usage, err := a.narrator.Generate(ctx, a.dom.NarrativePrompt(underlying), a.cfg.Temperature)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return dataset.Case{}, usage, err
		}
		return dataset.Case{}, usage, fmt.Errorf("%w: %v", internalerr.ErrEvaluationFailed, err)
	}
	if narrative == "" {
		return dataset.Case{}, usage, fmt.Errorf("%w: empty narrative", internalerr.ErrEvaluationFailed)
	}

	return dataset.Case{
		ID:              ulid.Make().String(),
		Narrative:       narrative,
		UnderlyingFacts: underlying,
		RuleSignals:     signals,
		ReasoningTrace:  trace,
		ReasoningTree:   tree,
		Question:        a.dom.Question(),
		Answer:          s.Answer,
		Options:         a.dom.Options(),
		Metadata: dataset.Metadata{
			Domain:      a.dom.Name(),
			MaxDepth:    a.cfg.MaxDepth,
			Model:       a.cfg.Model,
			Temperature: a.cfg.Temperature,
			Seed:        seed,
		},
	}, usage, nil
}

// treeNodes serializes the graph for persistence, leaves-to-root.
func treeNodes(g *graph.Graph) ([]dataset.TreeNode, error) {
	sorted, err := g.TopoSort()
	if err != nil {
		return nil, err
	}
	root := g.Root()
	out := make([]dataset.TreeNode, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, dataset.TreeNode{
			ID:          n.ID,
			Predicate:   n.Fact.Predicate,
			Vars:        n.Fact.Vars,
			Value:       n.Fact.Value,
			Tag:         string(n.Fact.Tag),
			Text:        n.Fact.Text,
			Rule:        n.Rule,
			Antecedents: n.Antecedents,
			Root:        root != nil && n.ID == root.ID,
		})
	}
	return out, nil
}

// retryable reports whether a fresh sample could fix the failure.
func retryable(err error) bool {
	return errors.Is(err, internalerr.ErrUnreachableAnswer) ||
		errors.Is(err, internalerr.ErrRuleBindingConflict) ||
		errors.Is(err, internalerr.ErrInvalidGraph)
}

// BatchReport summarizes one Batch call.
type BatchReport struct {
	Cases  []dataset.Case
	Usage  llm.Usage
	Failed []error
}

// Batch generates n cases concurrently. Per-sample failures are collected in
// the report, not returned as the batch error; only context cancellation
// aborts the whole batch, and even then the report carries every case that
// completed before the abort.
func (a *Assembler) Batch(ctx context.Context, n int) (BatchReport, error) {
	cases := make([]*dataset.Case, n)

	var mu sync.Mutex
	var report BatchReport

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.cfg.Workers)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			c, usage, err := a.Assemble(ctx, a.cfg.Seed+int64(i))
			mu.Lock()
			defer mu.Unlock()
			report.Usage.Add(usage)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				report.Failed = append(report.Failed, err)
				return nil
			}
			cases[i] = &c
			return nil
		})
	}
	waitErr := eg.Wait()
	for _, c := range cases {
		if c != nil {
			report.Cases = append(report.Cases, *c)
		}
	}
	return report, waitErr
}
