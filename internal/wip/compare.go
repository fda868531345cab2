package wip

import (
	"github.com/shopspring/decimal"
)

// DefaultThresholdPercent is the significance threshold applied when a
// comparison request does not supply its own.
var DefaultThresholdPercent = decimal.NewFromFloat(5.0)

// Tracked field names as they appear in comparison reports.
const (
	FieldTotalContractAmount   = "total_contract_amount"
	FieldEstimatedFinalCost    = "estimated_final_cost"
	FieldJobMarginAtCompletion = "job_margin_at_completion"
	FieldPercentCompletion     = "percent_completion"
)

// FieldChange describes how one tracked field moved between two periods.
type FieldChange struct {
	Field         string           `json:"field"`
	Current       *decimal.Decimal `json:"current"`
	Prior         *decimal.Decimal `json:"prior"`
	Delta         *decimal.Decimal `json:"delta"`
	ChangePercent *decimal.Decimal `json:"changePercent"`
	Significant   bool             `json:"significant"`
}

// ComparisonReport is the month-over-month change report for one project.
type ComparisonReport struct {
	ThresholdPercent      decimal.Decimal `json:"thresholdPercent"`
	Changes               []FieldChange   `json:"changes"`
	HasSignificantChanges bool            `json:"hasSignificantChanges"`
}

// trackedFields selects the compared values out of a snapshot, in report
// order.
var trackedFields = []struct {
	name string
	get  func(DerivedSnapshot) *decimal.Decimal
}{
	{FieldTotalContractAmount, func(s DerivedSnapshot) *decimal.Decimal { return s.TotalContractAmount }},
	{FieldEstimatedFinalCost, func(s DerivedSnapshot) *decimal.Decimal { return s.EstimatedFinalCost }},
	{FieldJobMarginAtCompletion, func(s DerivedSnapshot) *decimal.Decimal { return s.JobMarginAtCompletion }},
	{FieldPercentCompletion, func(s DerivedSnapshot) *decimal.Decimal { return s.PercentCompletion }},
}

// ComparePeriods produces a change report for the tracked fields of two
// snapshots of the same project. A field is significant when its absolute
// percent change relative to the prior value strictly exceeds
// thresholdPercent. Fields with an absent current value, an absent prior
// value, or a prior of exactly zero are reported but never flagged.
func ComparePeriods(current, prior DerivedSnapshot, thresholdPercent decimal.Decimal) ComparisonReport {
	report := ComparisonReport{
		ThresholdPercent: thresholdPercent,
		Changes:          make([]FieldChange, 0, len(trackedFields)),
	}

	for _, field := range trackedFields {
		change := FieldChange{
			Field:   field.name,
			Current: field.get(current),
			Prior:   field.get(prior),
		}
		change.Delta = subOpt(change.Current, change.Prior)

		if change.Current != nil && change.Prior != nil && !change.Prior.IsZero() {
			pct := change.Current.Sub(*change.Prior).Div(*change.Prior).Mul(hundred).Abs()
			change.ChangePercent = Ptr(pct)
			change.Significant = pct.GreaterThan(thresholdPercent)
		}

		if change.Significant {
			report.HasSignificantChanges = true
		}
		report.Changes = append(report.Changes, change)
	}

	return report
}
