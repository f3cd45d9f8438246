package jointassessment

import (
	"math"
	"math/rand"
)

// Person carries one spouse's tax-relevant inputs for an assessment year.
type Person struct {
	Income          float64 // taxable income before deductions
	PaysChurchTax   bool
	WageReplacement float64 // Elterngeld, Krankengeld, ALG1 etc. (Progressionsvorbehalt)
	MedicalCosts    float64 // only the part above an income-based threshold is deductible
	FullyLiable     bool    // false for persons without residence in Germany
}

// CoupleInput is the full input to the joint-vs-individual comparison.
type CoupleInput struct {
	A, B          Person
	ChurchTaxRate float64 // 0.09 typical, 0.08 in Bavaria and Baden-Wuerttemberg
	Married       bool
	Children      int
	LiveTogether  bool // at least one day in the assessment year
}

// Tax2025 computes income tax per the 2025 bracket formula of §32a EStG.
func Tax2025(x float64) float64 {
	const (
		e1 = 12096
		e2 = 17443
		e3 = 68480
		e4 = 277825
	)
	x = math.Floor(math.Max(0, x))

	var tax float64
	switch {
	case x <= e1:
		tax = 0
	case x <= e2:
		// y is a ten-thousandth of the part exceeding the basic allowance
		y := (x - e1) / 10000.0
		tax = (932.30*y + 1400.0) * y
	case x <= e3:
		z := (x - e2) / 10000.0
		tax = (176.64*z+2397.0)*z + 1015.13
	case x <= e4:
		tax = 0.42*x - 10911.92
	default:
		tax = 0.45*x - 19246.67
	}
	return math.Floor(tax)
}

// singleAssessment taxes one person's income.
func singleAssessment(taxableIncome float64) float64 {
	return Tax2025(math.Max(0, taxableIncome))
}

// jointSplitting taxes a couple's combined income under the splitting method:
// halve, tax, double.
func jointSplitting(taxableIncome float64) float64 {
	half := math.Max(0, taxableIncome) / 2.0
	return 2.0 * Tax2025(half)
}

// progressionRate returns the effective rate once tax-free wage replacement
// benefits are added back for rate purposes (Progressionsvorbehalt).
func progressionRate(taxableIncome, wageReplacement float64, joint bool) float64 {
	basePlus := math.Max(0, taxableIncome) + math.Max(0, wageReplacement)
	if basePlus <= 0 {
		return 0
	}
	if joint {
		return jointSplitting(basePlus) / basePlus
	}
	return singleAssessment(basePlus) / basePlus
}

// TaxableAfterMedical deducts the part of medical costs exceeding the
// income-based reasonable-burden threshold (2025 values).
func TaxableAfterMedical(income, medical float64) float64 {
	income = math.Max(0, income)
	medical = math.Max(0, medical)

	var threshold float64
	switch {
	case income <= 15340:
		threshold = 0.05 * income
	case income <= 51130:
		threshold = 0.06 * income
	default:
		threshold = 0.07 * income
	}

	deductible := math.Max(0, medical-threshold)
	return math.Max(0, income-deductible)
}

// specialChurchTax is the table for couples where only the lower-earning
// spouse is a church member (besonderes Kirchgeld).
func specialChurchTax(income float64) float64 {
	brackets := []struct {
		upTo float64
		tax  float64
	}{
		{50000, 0}, {57500, 96}, {70000, 156}, {82500, 276}, {95000, 396},
		{107500, 540}, {120000, 696}, {145000, 840}, {170000, 1200},
		{195000, 1560}, {220000, 1860}, {270000, 2220}, {320000, 2940},
	}
	for _, b := range brackets {
		if income < b.upTo {
			return b.tax
		}
	}
	return 3600
}

// comparisonInput is the reduced input after medical deductions: everything
// the joint-vs-individual decision depends on.
type comparisonInput struct {
	taxableA, taxableB float64
	wageReplacementA   float64
	churchA, churchB   bool
	churchRate         float64
}

// jointTotal computes total tax (income tax plus church tax) under the
// splitting method with Progressionsvorbehalt.
func jointTotal(in comparisonInput) float64 {
	taxableTotal := in.taxableA + in.taxableB
	wrbTotal := math.Max(0, in.wageReplacementA)

	prate := progressionRate(taxableTotal, wrbTotal, true)
	baseTotal := prate * taxableTotal

	// Allocate base tax proportionally for church tax.
	var shareA, shareB float64
	if taxableTotal > 0 {
		shareA = in.taxableA / taxableTotal
		shareB = in.taxableB / taxableTotal
	}

	var churchA, churchB float64
	if in.churchA {
		churchA = baseTotal * shareA * in.churchRate
	}
	if in.churchB {
		churchB = baseTotal * shareB * in.churchRate
	}

	// Special church tax when only one spouse is a member and earns no or
	// significantly lower income (< 35% of the total).
	if in.churchA != in.churchB {
		if in.churchA && shareA < 0.35 {
			churchA = math.Max(churchA, specialChurchTax(taxableTotal))
		} else if in.churchB && shareB < 0.35 {
			churchB = math.Max(churchB, specialChurchTax(taxableTotal))
		}
	}

	return round2(baseTotal + churchA + churchB)
}

// individualTotal computes total tax when each spouse files separately.
func individualTotal(in comparisonInput) float64 {
	prateA := progressionRate(in.taxableA, in.wageReplacementA, false)
	baseA := prateA * in.taxableA
	var churchATax float64
	if in.churchA {
		churchATax = baseA * in.churchRate
	}

	prateB := progressionRate(in.taxableB, 0, false)
	baseB := prateB * in.taxableB
	var churchBTax float64
	if in.churchB {
		churchBTax = baseB * in.churchRate
	}

	return round2(baseA + churchATax + baseB + churchBTax)
}

// Comparison holds both totals and the resulting recommendation.
type Comparison struct {
	JointTotal      float64
	IndividualTotal float64
	// Advantage is positive when joint assessment saves that amount.
	Advantage float64
	// Recommendation is AnswerJoint or AnswerIndividual; joint wins ties.
	Recommendation string
}

func compare(in comparisonInput) Comparison {
	jt := jointTotal(in)
	it := individualTotal(in)
	rec := AnswerJoint
	if it < jt {
		rec = AnswerIndividual
	}
	return Comparison{
		JointTotal:      jt,
		IndividualTotal: it,
		Advantage:       round2(it - jt),
		Recommendation:  rec,
	}
}

// Compare evaluates the full couple input: medical deductions first, then
// the joint-vs-individual totals.
func Compare(in CoupleInput) Comparison {
	return compare(comparisonInput{
		taxableA:         TaxableAfterMedical(in.A.Income, in.A.MedicalCosts),
		taxableB:         TaxableAfterMedical(in.B.Income, in.B.MedicalCosts),
		wageReplacementA: in.A.WageReplacement,
		churchA:          in.A.PaysChurchTax,
		churchB:          in.B.PaysChurchTax,
		churchRate:       in.ChurchTaxRate,
	})
}

// Eligible reports whether the couple may choose joint assessment at all.
func Eligible(in CoupleInput) bool {
	return in.Married && in.A.FullyLiable && in.B.FullyLiable && in.LiveTogether
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Income pair pools for sampling: one spouse clearly out-earning the other
// versus near-equal earners.
var (
	imbalancedIncomes = [][2]int{{58000, 0}, {60000, 6000}, {95000, 22000}}
	similarIncomes    = [][2]int{{72000, 70000}, {40000, 42000}, {55000, 53000}}
)

// sampleCouple draws a couple input from the given RNG. All randomness flows
// through rng so a fixed seed reproduces the couple.
func sampleCouple(rng *rand.Rand) CoupleInput {
	var pair [2]int
	if rng.Float64() < 0.5 {
		pair = imbalancedIncomes[rng.Intn(len(imbalancedIncomes))]
	} else {
		pair = similarIncomes[rng.Intn(len(similarIncomes))]
	}
	incomeA := math.Max(0, math.Round(rng.NormFloat64()*5000+float64(pair[0])))
	incomeB := math.Max(0, math.Round(rng.NormFloat64()*5000+float64(pair[1])))

	paysChurchA := rng.Float64() < 0.3
	paysChurchB := rng.Float64() < 0.3
	wageReplacementA := []float64{0, 10800, 21600}[rng.Intn(3)]

	var medicalA, medicalB float64
	if rng.Float64() < 0.3 {
		base := []float64{500, 2000, 5000}[rng.Intn(3)]
		medicalA = math.Max(0, math.Round(rng.NormFloat64()*300+base))
	}
	if rng.Float64() < 0.3 {
		base := []float64{500, 2000, 5000}[rng.Intn(3)]
		medicalB = math.Max(0, math.Round(rng.NormFloat64()*300+base))
	}

	churchRate := 0.09
	if rng.Float64() >= 0.8 {
		churchRate = 0.08
	}

	liveTogether := rng.Float64() < 0.9
	fullyLiableA := rng.Float64() < 0.95
	fullyLiableB := rng.Float64() < 0.95
	children := weightedChoice(rng, []int{0, 1, 2, 3}, []float64{0.20, 0.24, 0.38, 0.18})

	return CoupleInput{
		A: Person{
			Income: incomeA, PaysChurchTax: paysChurchA,
			WageReplacement: wageReplacementA, MedicalCosts: medicalA,
			FullyLiable: fullyLiableA,
		},
		B: Person{
			Income: incomeB, PaysChurchTax: paysChurchB,
			MedicalCosts: medicalB, FullyLiable: fullyLiableB,
		},
		ChurchTaxRate: churchRate,
		Married:       true,
		Children:      children,
		LiveTogether:  liveTogether,
	}
}

func weightedChoice(rng *rand.Rand, values []int, weights []float64) int {
	r := rng.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return values[i]
		}
	}
	return values[len(values)-1]
}
