// Package domain defines the capability interface a tax domain implements.
// The engine depends only on this interface, never on a concrete domain.
package domain

import (
	"math/rand"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/rules"
)

// Sample is one drawn case template: the gold facts, the distractor pool,
// and the answer the reasoning tree must derive.
type Sample struct {
	Gold        []fact.Fact
	Distractors []fact.Fact
	// Target is the fact shape of the answer-bearing conclusion.
	Target rules.Shape
	// Answer is the canonical answer string, one of the domain's options.
	Answer string
}

// Domain supplies rules and fact sampling for one tax scenario.
type Domain interface {
	// Name identifies the domain in case records and file names.
	Name() string
	// Registry returns the domain's rule set. Read-only, safe to share
	// across workers.
	Registry() rules.Registry
	// Sample draws gold and distractor facts from the given RNG. The
	// answer is computed from the drawn facts, so a fixed RNG state
	// reproduces the sample.
	Sample(rng *rand.Rand) Sample
	// Question is the question posed about every narrative.
	Question() string
	// Options are the admissible answers, in presentation order.
	Options() []string
	// NarrativePrompt renders the prompt sent to the narrative
	// collaborator for the given story facts.
	NarrativePrompt(storyFacts []string) string
	// DefaultMaxDepth is the depth bound sufficient for the domain's
	// longest rule chain.
	DefaultMaxDepth() int
}
