// Package homeoffice implements the home office deduction domain: pro-rata
// cost deduction versus the yearly flat rate.
package homeoffice

import (
	"fmt"
	"math/rand"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/domain"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/rules"
)

// Name is the registered domain name.
const Name = "home_office_deduction"

var jobs = []string{
	"Software Engineer", "Teacher", "Graphic Designer", "Photographer",
	"Interpreter", "Professor", "Secretary", "Writer", "Accountant", "Salesperson",
}

// workspace is one sampled working situation.
type workspace struct {
	SeparateRoom   bool
	ExclusiveUse   bool
	CenterOfWork   bool
	OtherWorkplace bool
}

// answer applies the deduction logic directly, without the rule chain.
func (w workspace) answer() string {
	qualifies := w.SeparateRoom && w.ExclusiveUse
	basis := w.CenterOfWork || !w.OtherWorkplace
	if qualifies && basis {
		return AnswerProRata
	}
	return AnswerFlatrate
}

// Domain implements domain.Domain.
type Domain struct {
	registry *rules.Table
}

// New creates the home office deduction domain.
func New() *Domain {
	return &Domain{registry: newRegistry()}
}

func (d *Domain) Name() string { return Name }

func (d *Domain) Registry() rules.Registry { return d.registry }

func (d *Domain) Question() string {
	return "Can the narrator deduct the pro-rata costs for the home office or should they claim the flatrate?"
}

func (d *Domain) Options() []string {
	return []string{AnswerProRata, AnswerFlatrate}
}

// DefaultMaxDepth covers qualification and basis, then the recommendation.
func (d *Domain) DefaultMaxDepth() int { return 2 }

// Sample draws a working situation and renders the gold facts the rule chain
// consumes.
func (d *Domain) Sample(rng *rand.Rand) domain.Sample {
	w := workspace{
		SeparateRoom:   rng.Float64() < 0.6,
		ExclusiveUse:   rng.Float64() < 0.7,
		CenterOfWork:   rng.Float64() < 0.5,
		OtherWorkplace: rng.Float64() < 0.6,
	}
	answer := w.answer()

	return domain.Sample{
		Gold:        goldFacts(w),
		Distractors: distractors(rng),
		Target:      rules.Shape{Predicate: "recommendation", Value: answer},
		Answer:      answer,
	}
}

func goldFacts(w workspace) []fact.Fact {
	boolStr := func(b bool) string {
		if b {
			return "true"
		}
		return "false"
	}
	pick := func(b bool, yes, no string) string {
		if b {
			return yes
		}
		return no
	}

	return []fact.Fact{
		{
			Predicate: "separate_room", Value: boolStr(w.SeparateRoom),
			Vars: map[string]string{"sep": boolStr(w.SeparateRoom)},
			Text: pick(w.SeparateRoom,
				"The narrator works in a separate room of their home.",
				"The narrator works at a desk in a corner of the living room."),
		},
		{
			Predicate: "exclusive_use", Value: boolStr(w.ExclusiveUse),
			Vars: map[string]string{"excl": boolStr(w.ExclusiveUse)},
			Text: pick(w.ExclusiveUse,
				"The room is used almost exclusively for professional purposes.",
				"The room is regularly used for private purposes as well."),
		},
		{
			Predicate: "center_of_activity", Value: boolStr(w.CenterOfWork),
			Vars: map[string]string{"center": boolStr(w.CenterOfWork)},
			Text: pick(w.CenterOfWork,
				"The narrator carries out the majority of their professional activities at home.",
				"The narrator carries out most of their professional activities outside their home."),
		},
		{
			Predicate: "other_workplace", Value: boolStr(w.OtherWorkplace),
			Vars: map[string]string{"other": boolStr(w.OtherWorkplace)},
			Text: pick(w.OtherWorkplace,
				"The narrator's employer provides another workplace the narrator could use.",
				"No other workplace is available to the narrator for their professional use."),
		},
	}
}

// distractors add narrative color without touching the deduction decision.
func distractors(rng *rand.Rand) []fact.Fact {
	rooms := []int{2, 3}[rng.Intn(2)]
	return []fact.Fact{
		{Predicate: "job", Value: "narrative",
			Text: fmt.Sprintf("The narrator works as a %s.", jobs[rng.Intn(len(jobs))])},
		{Predicate: "apartment_rooms", Value: fmt.Sprint(rooms),
			Text: fmt.Sprintf("The narrator lives in an apartment with %d rooms.", rooms)},
	}
}
