// Package jointassessment implements the joint-vs-individual assessment
// domain for married couples in Germany, with grounded 2025 tax math.
package jointassessment

import (
	"fmt"
	"math/rand"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/domain"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/fact"
	"github.com/steuerlab/taxmusr/pkg/taxmusr/rules"
)

// Name is the registered domain name.
const Name = "joint_assessment"

var jobs = []string{
	"Software Engineer", "Teacher", "Doctor", "Graphic Designer", "Chef",
	"Mechanic", "Nurse", "Photographer", "Electrician", "Plumber",
	"Carpenter", "Secretary", "Writer", "Accountant", "Salesperson",
}

// Domain implements domain.Domain.
type Domain struct {
	registry *rules.Table
}

// New creates the joint assessment domain.
func New() *Domain {
	return &Domain{registry: newRegistry()}
}

func (d *Domain) Name() string { return Name }

func (d *Domain) Registry() rules.Registry { return d.registry }

func (d *Domain) Question() string {
	return "Should the couple opt for joint assessment or individual assessment to minimize their tax burden?"
}

func (d *Domain) Options() []string {
	return []string{AnswerJoint, AnswerIndividual}
}

// DefaultMaxDepth covers the longest chain: medical deduction, comparison,
// recommendation.
func (d *Domain) DefaultMaxDepth() int { return 3 }

// Sample draws a couple, computes the canonical answer from the grounded tax
// math, and renders the gold facts the rule chain consumes.
func (d *Domain) Sample(rng *rand.Rand) domain.Sample {
	couple := sampleCouple(rng)

	answer := AnswerIndividual
	if Eligible(couple) {
		answer = Compare(couple).Recommendation
	}

	return domain.Sample{
		Gold:        goldFacts(couple),
		Distractors: distractors(rng, couple),
		Target:      rules.Shape{Predicate: "recommendation", Value: answer},
		Answer:      answer,
	}
}

func goldFacts(c CoupleInput) []fact.Fact {
	boolStr := func(b bool) string {
		if b {
			return "true"
		}
		return "false"
	}

	residenceText := "The couple lived together at least for one day during the year."
	if !c.LiveTogether {
		residenceText = "The couple did not live together at any point during the year."
	}
	liableText := func(who string, liable bool) string {
		if liable {
			return fmt.Sprintf("Person %s is fully liable for tax in Germany.", who)
		}
		return fmt.Sprintf("Person %s is not fully liable for tax in Germany.", who)
	}
	incomeText := func(who string, income float64) string {
		if income > 0 {
			return fmt.Sprintf("Person %s has a taxable income of %s euros.", who, formatAmount(income))
		}
		return fmt.Sprintf("Person %s has no taxable income.", who)
	}
	wrbText := "Person A received no wage replacement benefits."
	if c.A.WageReplacement > 0 {
		wrbText = fmt.Sprintf("Person A received %s euros in wage replacement benefits.", formatAmount(c.A.WageReplacement))
	}
	medicalText := func(who string, costs float64) string {
		if costs > 0 {
			return fmt.Sprintf("Person %s paid %s euros in medical costs out of pocket.", who, formatAmount(costs))
		}
		return fmt.Sprintf("Person %s had no notable medical costs.", who)
	}

	churchValue := "none"
	churchText := "Neither Person A nor Person B is a member of a church that collects church tax."
	switch {
	case c.A.PaysChurchTax && c.B.PaysChurchTax:
		churchValue = "both"
		churchText = fmt.Sprintf("Both Person A and Person B pay church tax at a rate of %.0f percent.", c.ChurchTaxRate*100)
	case c.A.PaysChurchTax:
		churchValue = "a"
		churchText = fmt.Sprintf("Only Person A is a member of a church that collects church tax at %.0f percent.", c.ChurchTaxRate*100)
	case c.B.PaysChurchTax:
		churchValue = "b"
		churchText = fmt.Sprintf("Only Person B is a member of a church that collects church tax at %.0f percent.", c.ChurchTaxRate*100)
	}

	return []fact.Fact{
		{
			Predicate: "married", Value: "true",
			Vars: map[string]string{"married": "true"},
			Text: "Person A and Person B are married.",
		},
		{
			Predicate: "same_residence", Value: boolStr(c.LiveTogether),
			Vars: map[string]string{"residence": boolStr(c.LiveTogether)},
			Text: residenceText,
		},
		{
			Predicate: "fully_liable_a", Value: boolStr(c.A.FullyLiable),
			Vars: map[string]string{"liable_a": boolStr(c.A.FullyLiable)},
			Text: liableText("A", c.A.FullyLiable),
		},
		{
			Predicate: "fully_liable_b", Value: boolStr(c.B.FullyLiable),
			Vars: map[string]string{"liable_b": boolStr(c.B.FullyLiable)},
			Text: liableText("B", c.B.FullyLiable),
		},
		{
			Predicate: "spouse_a_income", Value: formatAmount(c.A.Income),
			Vars: map[string]string{"income_a": formatAmount(c.A.Income)},
			Text: incomeText("A", c.A.Income),
		},
		{
			Predicate: "spouse_b_income", Value: formatAmount(c.B.Income),
			Vars: map[string]string{"income_b": formatAmount(c.B.Income)},
			Text: incomeText("B", c.B.Income),
		},
		{
			Predicate: "wage_replacement_a", Value: formatAmount(c.A.WageReplacement),
			Vars: map[string]string{"wrb_a": formatAmount(c.A.WageReplacement)},
			Text: wrbText,
		},
		{
			Predicate: "medical_costs_a", Value: formatAmount(c.A.MedicalCosts),
			Vars: map[string]string{"medical_a": formatAmount(c.A.MedicalCosts)},
			Text: medicalText("A", c.A.MedicalCosts),
		},
		{
			Predicate: "medical_costs_b", Value: formatAmount(c.B.MedicalCosts),
			Vars: map[string]string{"medical_b": formatAmount(c.B.MedicalCosts)},
			Text: medicalText("B", c.B.MedicalCosts),
		},
		{
			Predicate: "church_status", Value: churchValue,
			Vars: map[string]string{
				"church_a":    boolStr(c.A.PaysChurchTax),
				"church_b":    boolStr(c.B.PaysChurchTax),
				"church_rate": formatAmount(c.ChurchTaxRate),
			},
			Text: churchText,
		},
	}
}

// distractors add narrative color without touching the tax decision.
func distractors(rng *rand.Rand, c CoupleInput) []fact.Fact {
	jobText := func(who string, income float64) string {
		if income > 0 {
			return fmt.Sprintf("Person %s works as a %s.", who, jobs[rng.Intn(len(jobs))])
		}
		return fmt.Sprintf("Person %s is currently unemployed.", who)
	}
	childrenText := "The couple has no children."
	if c.Children == 1 {
		childrenText = "The couple has 1 child."
	} else if c.Children > 1 {
		childrenText = fmt.Sprintf("The couple has %d children.", c.Children)
	}

	return []fact.Fact{
		{Predicate: "job_a", Value: "narrative", Text: jobText("A", c.A.Income)},
		{Predicate: "job_b", Value: "narrative", Text: jobText("B", c.B.Income)},
		{Predicate: "children", Value: fmt.Sprint(c.Children), Text: childrenText},
	}
}

// NarrativePrompt asks the collaborator for a first-person story implying
// the facts without naming the assessment choice.
func (d *Domain) NarrativePrompt(storyFacts []string) string {
	return narrativePrompt(storyFacts)
}
