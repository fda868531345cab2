// Package wip defines the data structures for work-in-progress reporting
// periods and includes functions for computing the derived accounting fields
// and comparing successive periods.
package wip

import (
	"github.com/shopspring/decimal"
)

// PeriodInput holds the user-entered figures for one reporting period.
// Every field is optional; a nil pointer means the value was not entered.
type PeriodInput struct {
	OriginalContractAmount  *decimal.Decimal
	ChangeOrderAmount       *decimal.Decimal
	CostToDate              *decimal.Decimal
	EstimatedCostToComplete *decimal.Decimal
	RevenueBilledToDate     *decimal.Decimal
	AdditionalEntryRequired *decimal.Decimal
}

// PriorSnapshot carries the handful of derived values from the prior period
// that feed the month-over-month variance fields.
type PriorSnapshot struct {
	TotalContractAmount   *decimal.Decimal
	EstimatedFinalCost    *decimal.Decimal
	JobMarginAtCompletion *decimal.Decimal
}

// DerivedSnapshot is the complete set of calculated fields for one period.
// A nil field means the value could not be computed from the available
// inputs; it is never a silent zero.
type DerivedSnapshot struct {
	// Contract group
	TotalContractAmount     *decimal.Decimal
	ContractVarianceVsPrior *decimal.Decimal

	// Cost group
	EstimatedFinalCost       *decimal.Decimal
	FinalCostVarianceVsPrior *decimal.Decimal

	// Revenue recognition group (US GAAP percent of completion)
	PercentCompletion               *decimal.Decimal
	RevenueEarnedToDate             *decimal.Decimal
	JobMarginToDate                 *decimal.Decimal
	JobMarginToDatePercentOfRevenue *decimal.Decimal

	// Job margin at completion group
	JobMarginAtCompletion      *decimal.Decimal
	JobMarginVarianceVsPrior   *decimal.Decimal
	JobMarginPercentOfContract *decimal.Decimal

	// WIP adjustment group
	CostsInExcessOfBillings   *decimal.Decimal
	BillingsInExcessOfRevenue *decimal.Decimal
}

// Prior projects the values a subsequent period needs for its variance
// calculations.
func (s DerivedSnapshot) Prior() PriorSnapshot {
	return PriorSnapshot{
		TotalContractAmount:   s.TotalContractAmount,
		EstimatedFinalCost:    s.EstimatedFinalCost,
		JobMarginAtCompletion: s.JobMarginAtCompletion,
	}
}

// Ptr returns a pointer to a copy of d. Useful for building optional fields.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// hundred is the percent scaling factor.
var hundred = decimal.NewFromInt(100)

// round2 quantizes to two decimal places, rounding halves away from zero.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// addOpt returns a+b when both are present, nil otherwise.
func addOpt(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	return Ptr(a.Add(*b))
}

// subOpt returns a-b when both are present, nil otherwise.
func subOpt(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	return Ptr(a.Sub(*b))
}

// ratioPercent returns round2(num/den*100) when both are present and den is
// strictly positive. An absent or non-positive denominator yields nil rather
// than an error.
func ratioPercent(num, den *decimal.Decimal) *decimal.Decimal {
	if num == nil || den == nil || !den.IsPositive() {
		return nil
	}
	return Ptr(round2(num.Div(*den).Mul(hundred)))
}
