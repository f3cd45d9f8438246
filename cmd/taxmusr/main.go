// Command taxmusr generates tax reasoning cases and evaluates model
// predictions against them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"

	"github.com/steuerlab/taxmusr/internal/llm"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/assemble"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/config"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/dataset"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/domain"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/domain/homeoffice"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/domain/jointassessment"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/runlog"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/score"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/validate"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/workflow"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(ctx, os.Args[2:])
	case "evaluate":
		err = runEvaluate(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: taxmusr <generate|evaluate> [flags]")
	fmt.Fprintln(os.Stderr, "  generate  -domain D -num-samples N -out FILE [-output-dir DIR] [-max-depth D] [-seed S]")
	fmt.Fprintln(os.Stderr, "  evaluate  -dataset FILE -output-path FILE [-workflow cot|few_shot|zero_shot]")
}

type generateOpts struct {
	configPath  string
	domainName  string
	numSamples  int
	out         string
	outputDir   string
	maxDepth    int
	distractors int
	seed        int64
	workers     int
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	dbPath      string
}

func parseGenerateFlags(args []string) (*generateOpts, error) {
	defaults := config.Default()
	o := &generateOpts{}
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "YAML config file (optional)")
	fs.StringVar(&o.domainName, "domain", defaults.Generation.Domain, "Tax domain (joint_assessment or home_office_deduction)")
	fs.IntVar(&o.numSamples, "num-samples", defaults.Generation.NumSamples, "Number of cases to generate")
	fs.IntVar(&o.numSamples, "n", defaults.Generation.NumSamples, "Shorthand for -num-samples")
	fs.StringVar(&o.out, "out", "cases.jsonl", "Output JSONL path")
	fs.StringVar(&o.outputDir, "output-dir", "", "Output directory; writes DIR/<domain>.jsonl and overrides -out")
	fs.IntVar(&o.maxDepth, "max-depth", 0, "Reasoning depth bound (0 uses the domain default)")
	fs.IntVar(&o.distractors, "max-distractors", defaults.Generation.MaxDistractors, "Distractor cap per case (-1 for all, 0 for none)")
	fs.Int64Var(&o.seed, "seed", defaults.Generation.Seed, "Master random seed")
	fs.IntVar(&o.workers, "workers", defaults.Generation.Workers, "Concurrent narrative calls")
	fs.StringVar(&o.model, "model", defaults.Model.Name, "Narrator model")
	fs.Float64Var(&o.temperature, "temperature", defaults.Model.Temperature, "Sampling temperature")
	fs.Float64Var(&o.topP, "top-p", defaults.Model.TopP, "Nucleus sampling top-p")
	fs.IntVar(&o.maxTokens, "max-tokens", defaults.Model.MaxTokens, "Completion token cap")
	fs.StringVar(&o.dbPath, "db", "", "SQLite run log path (optional)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// outputPath resolves the generate output file. -output-dir names a
// directory holding one file per domain.
func (o *generateOpts) outputPath(domainName string) string {
	if o.outputDir != "" {
		return filepath.Join(o.outputDir, domainName+".jsonl")
	}
	return o.out
}

func runGenerate(ctx context.Context, args []string) error {
	o, err := parseGenerateFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(o.configPath)
	if err != nil {
		return err
	}

	dom, err := domainByName(o.domainName)
	if err != nil {
		return err
	}

	client := &llm.Client{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      cfg.Model.APIKey(),
		Model:       o.model,
		Temperature: o.temperature,
		TopP:        o.topP,
		MaxTokens:   o.maxTokens,
		MaxRetries:  cfg.Model.MaxRetries,
	}

	asm := assemble.New(dom, &narrator{client: client}, assemble.Config{
		MaxDepth:       o.maxDepth,
		MaxDistractors: o.distractors,
		Temperature:    o.temperature,
		Model:          o.model,
		Seed:           o.seed,
		Workers:        o.workers,
	})

	store, runID, err := openRunLog(ctx, o.dbPath, runlog.Run{
		Kind: "generate", Domain: dom.Name(), Model: o.model,
	})
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	// A cancelled batch still reports the cases it completed; flush them
	// before surfacing the abort. The bookkeeping below must outlive the
	// cancelled context.
	report, batchErr := asm.Batch(ctx, o.numSamples)
	flushCtx := context.WithoutCancel(ctx)
	for _, ferr := range report.Failed {
		log.Printf("generate: %v", ferr)
	}

	out := o.outputPath(dom.Name())
	w, err := dataset.OpenWriter(out)
	if err != nil {
		return err
	}
	defer w.Close()
	for _, c := range report.Cases {
		if err := w.Write(c); err != nil {
			return err
		}
		recordSample(flushCtx, store, runlog.Sample{
			RunID: runID, CaseID: c.ID, Status: "ok",
		})
	}
	for _, ferr := range report.Failed {
		recordSample(flushCtx, store, runlog.Sample{
			RunID: runID, Status: "failed", Error: ferr.Error(),
		})
	}
	finishRun(flushCtx, store, runID)

	log.Printf("generate: wrote %d cases to %s (%d failed, %d tokens)",
		len(report.Cases), out, len(report.Failed), report.Usage.TotalTokens)
	return batchErr
}

type evaluateOpts struct {
	configPath   string
	datasetPath  string
	out          string
	workflowKind string
	threshold    float64
	workers      int
	examples     int
	model        string
	temperature  float64
	topP         float64
	maxTokens    int
	dbPath       string
}

func parseEvaluateFlags(args []string) (*evaluateOpts, error) {
	defaults := config.Default()
	o := &evaluateOpts{}
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "YAML config file (optional)")
	fs.StringVar(&o.datasetPath, "dataset", "", "Dataset path (.json or .jsonl, required)")
	fs.StringVar(&o.out, "output-path", "results.jsonl", "Output JSONL path")
	fs.StringVar(&o.out, "out", "results.jsonl", "Shorthand for -output-path")
	fs.StringVar(&o.workflowKind, "workflow", defaults.Evaluation.Workflow, "Workflow: cot, few_shot or zero_shot")
	fs.Float64Var(&o.threshold, "threshold", defaults.Evaluation.PathThreshold, "Trace match threshold for a fully correct verdict")
	fs.IntVar(&o.workers, "workers", defaults.Evaluation.Workers, "Concurrent model calls")
	fs.IntVar(&o.examples, "examples", 2, "Few-shot example count")
	fs.StringVar(&o.model, "model", defaults.Model.Name, "Evaluation model")
	fs.Float64Var(&o.temperature, "temperature", defaults.Model.Temperature, "Sampling temperature")
	fs.Float64Var(&o.topP, "top-p", defaults.Model.TopP, "Nucleus sampling top-p")
	fs.IntVar(&o.maxTokens, "max-tokens", defaults.Model.MaxTokens, "Completion token cap")
	fs.StringVar(&o.dbPath, "db", "", "SQLite run log path (optional)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

func runEvaluate(ctx context.Context, args []string) error {
	o, err := parseEvaluateFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.datasetPath == "" {
		return fmt.Errorf("evaluate: -dataset required")
	}

	cases, err := dataset.ReadCases(o.datasetPath)
	if err != nil {
		return err
	}
	log.Printf("evaluate: loaded %d cases from %s", len(cases), o.datasetPath)

	client := &llm.Client{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      cfg.Model.APIKey(),
		Model:       o.model,
		Temperature: o.temperature,
		TopP:        o.topP,
		MaxTokens:   o.maxTokens,
		MaxRetries:  cfg.Model.MaxRetries,
	}

	wf, cases, err := buildWorkflow(client, o.workflowKind, o.examples, cases)
	if err != nil {
		return err
	}

	store, runID, err := openRunLog(ctx, o.dbPath, runlog.Run{
		Kind: "evaluate", Model: o.model, Workflow: wf.Name(),
	})
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	scorer := score.New(wf, score.Config{
		Workers: o.workers,
		Judge:   validate.JudgeConfig{PathThreshold: o.threshold},
	})
	// A cancelled run still returns the results it scored; flush them
	// before surfacing the abort.
	results, summary, runErr := scorer.Run(ctx, cases)
	flushCtx := context.WithoutCancel(ctx)
	for _, ferr := range summary.Failed {
		log.Printf("evaluate: %v", ferr)
	}

	w, err := dataset.OpenWriter(o.out)
	if err != nil {
		return err
	}
	defer w.Close()
	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
		recordSample(flushCtx, store, runlog.Sample{
			RunID: runID, CaseID: r.ID, Status: "ok", Verdict: r.Prediction.Verdict,
			PromptTokens:     r.Prediction.TokenUsage.PromptTokens,
			CompletionTokens: r.Prediction.TokenUsage.CompletionTokens,
			TotalTokens:      r.Prediction.TokenUsage.TotalTokens,
		})
	}
	for _, ferr := range summary.Failed {
		recordSample(flushCtx, store, runlog.Sample{
			RunID: runID, Status: "failed", Error: ferr.Error(),
		})
	}
	finishRun(flushCtx, store, runID)

	log.Printf("evaluate: accuracy %.2f%% over %d/%d cases, wrote %s",
		summary.Accuracy*100, summary.Scored, summary.Total, o.out)
	for verdict, count := range summary.Verdicts {
		log.Printf("evaluate: verdict %s: %d", verdict, count)
	}
	return runErr
}

// buildWorkflow constructs the requested workflow. Few-shot consumes the
// leading cases as examples and evaluates the rest.
func buildWorkflow(client *llm.Client, kind string, numExamples int, cases []dataset.Case) (workflow.Workflow, []dataset.Case, error) {
	switch kind {
	case "cot":
		return &workflow.Baseline{Client: client, CoT: true}, cases, nil
	case "zero_shot":
		return &workflow.Baseline{Client: client}, cases, nil
	case "few_shot":
		if numExamples >= len(cases) {
			return nil, nil, fmt.Errorf("evaluate: %d few-shot examples leave no cases to score", numExamples)
		}
		examples := make([]workflow.Example, 0, numExamples)
		for _, c := range cases[:numExamples] {
			examples = append(examples, workflow.Example{
				Narrative: c.Narrative, Question: c.Question, Answer: c.Answer,
			})
		}
		return &workflow.Baseline{Client: client, Examples: examples}, cases[numExamples:], nil
	default:
		return nil, nil, fmt.Errorf("evaluate: unknown workflow %q", kind)
	}
}

func domainByName(name string) (domain.Domain, error) {
	switch name {
	case jointassessment.Name:
		return jointassessment.New(), nil
	case homeoffice.Name:
		return homeoffice.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", internalerr.ErrUnknownDomain, name)
	}
}

// resolveConfig loads the YAML file when given, otherwise the defaults.
// Flags cover the per-run knobs; the file supplies the endpoint settings.
func resolveConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// narrator adapts the chat client to the assembler's collaborator interface.
type narrator struct {
	client *llm.Client
}

func (n *narrator) Generate(ctx context.Context, prompt string, temperature float64) (string, llm.Usage, error) {
	c := *n.client
	c.Temperature = temperature
	return c.Chat(ctx, "You are a careful writer of short, realistic stories.", prompt)
}

func openRunLog(ctx context.Context, path string, run runlog.Run) (runlog.Store, string, error) {
	if path == "" {
		return nil, "", nil
	}
	store, err := runlog.OpenSQLite(ctx, path)
	if err != nil {
		return nil, "", err
	}
	run.ID = ulid.Make().String()
	run.StartedAt = time.Now()
	if err := store.CreateRun(ctx, run); err != nil {
		store.Close()
		return nil, "", err
	}
	return store, run.ID, nil
}

func recordSample(ctx context.Context, store runlog.Store, s runlog.Sample) {
	if store == nil {
		return
	}
	if err := store.RecordSample(ctx, s); err != nil {
		log.Printf("runlog: record sample: %v", err)
	}
}

func finishRun(ctx context.Context, store runlog.Store, runID string) {
	if store == nil {
		return
	}
	if err := store.FinishRun(ctx, runID, time.Now()); err != nil {
		log.Printf("runlog: finish run: %v", err)
	}
}
