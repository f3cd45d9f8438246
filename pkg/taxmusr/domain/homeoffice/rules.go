package homeoffice

import "github.com/steuerlab/taxmusr/pkg/taxmusr/rules"

// Canonical answers for the home office domain.
const (
	AnswerProRata  = "pro-rata"
	AnswerFlatrate = "flatrate"
)

// newRegistry builds the domain's rule set. The chain is:
//
//	separate_room, exclusive_use                   -> office_qualifies
//	center_of_activity, other_workplace            -> deduction_basis
//	office_qualifies, deduction_basis              -> recommendation
//
// A working space that does not qualify short-circuits to the flat rate.
func newRegistry() *rules.Table {
	return rules.NewTable(
		rules.Rule{
			Name:        "flatrate-unqualified",
			Antecedents: []rules.Shape{{Predicate: "office_qualifies", Value: "false"}},
			Conclusion: rules.Conclusion{
				Predicate: "recommendation",
				Value:     AnswerFlatrate,
				Text:      "The home office is not eligible, but the taxpayer can use the home office flatrate.",
			},
			Priority: 12,
			Signal:   "If the working space at home does not qualify as a home office, the home office flat rate can be claimed up to 1,260 EUR per year (6 EUR per day).",
		},
		rules.Rule{
			Name:        "office-not-qualifying",
			Antecedents: officeShapes(),
			Conclusion: rules.Conclusion{
				Predicate: "office_qualifies",
				Value:     "false",
				Text:      "The working space does not qualify as a home office for tax purposes.",
			},
			Priority: 11,
			Signal:   "A working corner in a living room or bedroom is generally not considered a home office for tax deduction purposes.",
			When:     func(b rules.Binding) bool { return b["sep"] != "true" || b["excl"] != "true" },
		},
		rules.Rule{
			Name:        "office-qualifying",
			Antecedents: officeShapes(),
			Conclusion: rules.Conclusion{
				Predicate: "office_qualifies",
				Value:     "true",
				Text:      "The working space qualifies as a home office for tax purposes.",
			},
			Priority: 10,
			Signal:   "A home office has to be a separate room that is used almost exclusively for professional purposes.",
			When:     func(b rules.Binding) bool { return b["sep"] == "true" && b["excl"] == "true" },
		},
		rules.Rule{
			Name:        "deduction-basis-met",
			Antecedents: basisShapes(),
			Conclusion: rules.Conclusion{
				Predicate: "deduction_basis",
				Value:     "true",
				Text:      "A legal basis for deducting the actual home office costs exists.",
			},
			Priority: 9,
			Signal:   "Under German tax law, costs for a home office can be deducted if the home office is the center of the entire professional activity or if no other workplace is available for professional use.",
			When:     func(b rules.Binding) bool { return b["center"] == "true" || b["other"] != "true" },
		},
		rules.Rule{
			Name:        "deduction-basis-unmet",
			Antecedents: basisShapes(),
			Conclusion: rules.Conclusion{
				Predicate: "deduction_basis",
				Value:     "false",
				Text:      "There is no legal basis for deducting the actual home office costs.",
			},
			Priority: 8,
			Signal:   "The home office is the center of professional activity if the majority of professional activities are carried out in the home office.",
			When:     func(b rules.Binding) bool { return b["center"] != "true" && b["other"] == "true" },
		},
		rules.Rule{
			Name: "pro-rata-deduction",
			Antecedents: []rules.Shape{
				{Predicate: "office_qualifies", Value: "true"},
				{Predicate: "deduction_basis", Value: "true"},
			},
			Conclusion: rules.Conclusion{
				Predicate: "recommendation",
				Value:     AnswerProRata,
				Text:      "The home office is eligible and the pro-rata costs can be deducted.",
			},
			Priority: 6,
			Signal:   "Deductible costs for a home office are calculated on a pro-rata basis (e.g., based on square meters).",
		},
		rules.Rule{
			Name: "flatrate-no-basis",
			Antecedents: []rules.Shape{
				{Predicate: "office_qualifies", Value: "true"},
				{Predicate: "deduction_basis", Value: "false"},
			},
			Conclusion: rules.Conclusion{
				Predicate: "recommendation",
				Value:     AnswerFlatrate,
				Text:      "The room qualifies as a home office, but without a deduction basis only the flatrate can be claimed.",
			},
			Priority: 6,
			Signal:   "Instead of exact costs, it is possible to claim a flat rate of 1,260 EUR per year for the home office.",
		},
	)
}

func officeShapes() []rules.Shape {
	return []rules.Shape{
		{Predicate: "separate_room"},
		{Predicate: "exclusive_use"},
	}
}

func basisShapes() []rules.Shape {
	return []rules.Shape{
		{Predicate: "center_of_activity"},
		{Predicate: "other_workplace"},
	}
}
