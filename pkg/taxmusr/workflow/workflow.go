// Package workflow runs prediction workflows over generated cases: prompt
// assembly, model calls and answer extraction.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/steuerlab/taxmusr/internal/llm"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
)

// answerMarker separates the model's reasoning from its final answer.
const answerMarker = "ANSWER:"

const systemPrompt = "You are a tax expert in Germany. Given a story, answer the question at the end."

// Output is one workflow run over one case.
type Output struct {
	// Answer is the extracted text after the answer marker.
	Answer string
	// Reasoning is everything the model produced before the marker.
	Reasoning string
	Usage     llm.Usage
}

// Example is a solved case used for few-shot prompting.
type Example struct {
	Narrative string
	Question  string
	Answer    string
}

// Workflow turns a case into a prediction.
type Workflow interface {
	// Run answers the question about the narrative. Returns
	// ErrMalformedPrediction when the reply carries no answer marker; the
	// raw reply is still returned as reasoning.
	Run(ctx context.Context, narrative, question string, options []string) (Output, error)
	Name() string
}

// Baseline prompts the model once per case, optionally with chain-of-thought
// instructions and few-shot examples.
type Baseline struct {
	Client *llm.Client
	// CoT asks the model to reason step by step before answering.
	CoT bool
	// Examples are prepended to the prompt; empty means zero-shot.
	Examples []Example
}

func (b *Baseline) Name() string {
	if b.CoT {
		return "cot"
	}
	if len(b.Examples) > 0 {
		return "few_shot"
	}
	return "zero_shot"
}

func (b *Baseline) Run(ctx context.Context, narrative, question string, options []string) (Output, error) {
	reply, usage, err := b.Client.Chat(ctx, systemPrompt, b.prompt(narrative, question, options))
	if err != nil {
		return Output{Usage: usage}, fmt.Errorf("workflow: %w", err)
	}
	out, err := parseReply(reply)
	out.Usage = usage
	return out, err
}

func (b *Baseline) prompt(narrative, question string, options []string) string {
	var sb strings.Builder
	if len(b.Examples) > 0 {
		sb.WriteString("Here are examples:\n\n")
		for _, ex := range b.Examples {
			fmt.Fprintf(&sb, "STORY:\n%s\n\nQUESTION:\n%s\n\n%q.\n", ex.Narrative, ex.Question, answerMarker+" "+ex.Answer)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "STORY:\n%s\n\n", narrative)
	fmt.Fprintf(&sb, "QUESTION:\n%s\n\n", question)
	fmt.Fprintf(&sb, "Pick one of the following choices: %s.\n", strings.Join(options, ", "))
	sb.WriteString("You must pick one option.\n")
	if b.CoT {
		sb.WriteString("Explain your reasoning step by step before you answer.\n")
	}
	fmt.Fprintf(&sb, "Finally, the last thing you generate should be %q.\n", answerMarker+" (your answer here)")
	return sb.String()
}

// parseReply splits the model reply at the last answer marker.
func parseReply(reply string) (Output, error) {
	reply = strings.TrimSpace(reply)
	idx := strings.LastIndex(reply, answerMarker)
	if idx < 0 {
		return Output{Reasoning: reply}, fmt.Errorf("workflow: no %q marker: %w", answerMarker, internalerr.ErrMalformedPrediction)
	}
	return Output{
		Answer:    strings.TrimSpace(reply[idx+len(answerMarker):]),
		Reasoning: strings.TrimSpace(reply[:idx]),
	}, nil
}
