package jointassessment

import (
	"strconv"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/rules"
)

// Canonical answers for the joint assessment domain.
const (
	AnswerJoint      = "joint_assessment"
	AnswerIndividual = "individual_assessment"
)

// newRegistry builds the domain's rule set. The chain is:
//
//	married, same_residence, fully_liable_a/b        -> eligible_joint
//	spouse_a_income, medical_costs_a                 -> taxable_income_a
//	spouse_b_income, medical_costs_b                 -> taxable_income_b
//	taxable incomes, wage_replacement, church_status -> tax_advantage
//	eligible_joint, tax_advantage                    -> recommendation
//
// Ineligible couples short-circuit to an individual recommendation.
func newRegistry() *rules.Table {
	return rules.NewTable(
		rules.Rule{
			Name:        "recommend-ineligible",
			Antecedents: []rules.Shape{{Predicate: "eligible_joint", Value: "false"}},
			Conclusion: rules.Conclusion{
				Predicate: "recommendation",
				Value:     AnswerIndividual,
				Text:      "The couple is not eligible for joint assessment and must file individual assessments.",
			},
			Priority: 12,
			Signal:   "If either spouse is subject to limited tax liability, or the couple never lived together in the year, they are not eligible for joint assessment.",
		},
		rules.Rule{
			Name:        "joint-ineligibility",
			Antecedents: eligibilityShapes(),
			Conclusion: rules.Conclusion{
				Predicate: "eligible_joint",
				Value:     "false",
				Text:      "The couple does not meet the legal requirements for joint assessment.",
			},
			Priority: 11,
			Signal:   "Couples are eligible for joint assessment only if they are married, both subject to unlimited tax liability, and live together for at least one day of the year.",
			When:     func(b rules.Binding) bool { return !allTrue(b, "married", "residence", "liable_a", "liable_b") },
		},
		rules.Rule{
			Name:        "joint-eligibility",
			Antecedents: eligibilityShapes(),
			Conclusion: rules.Conclusion{
				Predicate: "eligible_joint",
				Value:     "true",
				Text:      "The couple meets the legal requirements for joint assessment.",
			},
			Priority: 10,
			Signal:   "Couples are eligible for joint assessment if they are married in the assessment year, both subject to unlimited tax liability, and live together for at least one day.",
			When:     func(b rules.Binding) bool { return allTrue(b, "married", "residence", "liable_a", "liable_b") },
		},
		rules.Rule{
			Name: "taxable-income-a",
			Antecedents: []rules.Shape{
				{Predicate: "spouse_a_income"},
				{Predicate: "medical_costs_a"},
			},
			Conclusion: rules.Conclusion{
				Predicate: "taxable_income_a",
				BindAs:    "taxable_a",
				Text:      "Person A's taxable income after deducting extraordinary medical costs is {value} euros.",
			},
			Priority: 8,
			Signal:   "Extraordinary expenses can be deducted if they exceed a certain percentage of the taxpayer's income.",
			Derive: func(b rules.Binding) string {
				return formatAmount(TaxableAfterMedical(amount(b, "income_a"), amount(b, "medical_a")))
			},
		},
		rules.Rule{
			Name: "taxable-income-b",
			Antecedents: []rules.Shape{
				{Predicate: "spouse_b_income"},
				{Predicate: "medical_costs_b"},
			},
			Conclusion: rules.Conclusion{
				Predicate: "taxable_income_b",
				BindAs:    "taxable_b",
				Text:      "Person B's taxable income after deducting extraordinary medical costs is {value} euros.",
			},
			Priority: 8,
			Signal:   "Extraordinary expenses can be deducted if they exceed a certain percentage of the taxpayer's income.",
			Derive: func(b rules.Binding) string {
				return formatAmount(TaxableAfterMedical(amount(b, "income_b"), amount(b, "medical_b")))
			},
		},
		rules.Rule{
			Name: "assessment-comparison",
			Antecedents: []rules.Shape{
				{Predicate: "taxable_income_a"},
				{Predicate: "taxable_income_b"},
				{Predicate: "wage_replacement_a"},
				{Predicate: "church_status"},
			},
			Conclusion: rules.Conclusion{
				Predicate: "tax_advantage",
				Text:      "Working through both assessment types, the lower combined tax results from {value}.",
			},
			Priority: 6,
			Signal:   "For joint assessment, the combined income is halved to determine the tax rate, which favors couples with a significant income imbalance; wage replacement benefits and church tax shift the comparison.",
			Derive: func(b rules.Binding) string {
				return compare(comparisonInput{
					taxableA:         amount(b, "taxable_a"),
					taxableB:         amount(b, "taxable_b"),
					wageReplacementA: amount(b, "wrb_a"),
					churchA:          b["church_a"] == "true",
					churchB:          b["church_b"] == "true",
					churchRate:       amount(b, "church_rate"),
				}).Recommendation
			},
		},
		rules.Rule{
			Name: "recommend-joint",
			Antecedents: []rules.Shape{
				{Predicate: "eligible_joint", Value: "true"},
				{Predicate: "tax_advantage", Value: AnswerJoint},
			},
			Conclusion: rules.Conclusion{
				Predicate: "recommendation",
				Value:     AnswerJoint,
				Text:      "The couple should opt for joint assessment to minimize their tax burden.",
			},
			Priority: 4,
			Signal:   "Joint assessment is often more beneficial for couples where one spouse has a significantly higher income than the other.",
		},
		rules.Rule{
			Name: "recommend-individual",
			Antecedents: []rules.Shape{
				{Predicate: "eligible_joint", Value: "true"},
				{Predicate: "tax_advantage", Value: AnswerIndividual},
			},
			Conclusion: rules.Conclusion{
				Predicate: "recommendation",
				Value:     AnswerIndividual,
				Text:      "The couple is eligible for joint assessment, but should opt for individual assessment to minimize their tax burden.",
			},
			Priority: 4,
			Signal:   "For couples where only one spouse pays church tax and earns significantly less than the other, filing separately may be beneficial due to the special church tax calculation.",
		},
	)
}

func eligibilityShapes() []rules.Shape {
	return []rules.Shape{
		{Predicate: "married"},
		{Predicate: "same_residence"},
		{Predicate: "fully_liable_a"},
		{Predicate: "fully_liable_b"},
	}
}

func allTrue(b rules.Binding, keys ...string) bool {
	for _, k := range keys {
		if b[k] != "true" {
			return false
		}
	}
	return true
}

func amount(b rules.Binding, key string) float64 {
	v, err := strconv.ParseFloat(b[key], 64)
	if err != nil {
		return 0
	}
	return v
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
