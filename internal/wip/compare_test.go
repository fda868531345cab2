package wip

import (
	"testing"

	"github.com/shopspring/decimal"
)

func snapshotWith(total, finalCost, margin, percent string) DerivedSnapshot {
	return DerivedSnapshot{
		TotalContractAmount:   dec(total),
		EstimatedFinalCost:    dec(finalCost),
		JobMarginAtCompletion: dec(margin),
		PercentCompletion:     dec(percent),
	}
}

func findChange(t *testing.T, report ComparisonReport, field string) FieldChange {
	t.Helper()
	for _, change := range report.Changes {
		if change.Field == field {
			return change
		}
	}
	t.Fatalf("field %s missing from report", field)
	return FieldChange{}
}

func TestComparePeriodsThresholdBoundary(t *testing.T) {
	// A change of exactly the threshold is not significant; the comparison
	// is strictly greater-than.
	current := snapshotWith("1050000", "", "", "")
	prior := snapshotWith("1000000", "", "", "")

	report := ComparePeriods(current, prior, decimal.NewFromFloat(5.0))

	change := findChange(t, report, FieldTotalContractAmount)
	checkField(t, "ChangePercent", change.ChangePercent, "5")
	checkField(t, "Delta", change.Delta, "50000")
	if change.Significant {
		t.Error("5.0% change at a 5.0% threshold must not be flagged")
	}
	if report.HasSignificantChanges {
		t.Error("report must not carry a significant-change flag")
	}
}

func TestComparePeriodsSignificantChange(t *testing.T) {
	current := snapshotWith("1100000", "900000", "200000", "45.00")
	prior := snapshotWith("1000000", "890000", "110000", "44.00")

	report := ComparePeriods(current, prior, decimal.NewFromFloat(5.0))

	if !report.HasSignificantChanges {
		t.Fatal("expected significant changes")
	}

	tests := []struct {
		field       string
		significant bool
	}{
		{FieldTotalContractAmount, true},   // 10% change
		{FieldEstimatedFinalCost, false},   // ~1.12% change
		{FieldJobMarginAtCompletion, true}, // ~81.8% change
		{FieldPercentCompletion, false},    // ~2.27% change
	}
	for _, tt := range tests {
		change := findChange(t, report, tt.field)
		if change.Significant != tt.significant {
			t.Errorf("%s: significant = %v, expected %v (changePercent=%v)",
				tt.field, change.Significant, tt.significant, change.ChangePercent)
		}
	}
}

func TestComparePeriodsNegativeSwing(t *testing.T) {
	// Percent change is taken as an absolute value, so a drop flags too.
	current := snapshotWith("", "", "-50000", "")
	prior := snapshotWith("", "", "100000", "")

	report := ComparePeriods(current, prior, decimal.NewFromFloat(5.0))

	change := findChange(t, report, FieldJobMarginAtCompletion)
	checkField(t, "ChangePercent", change.ChangePercent, "150")
	if !change.Significant {
		t.Error("a 150% swing must be flagged")
	}
}

func TestComparePeriodsAbsentAndZeroPriors(t *testing.T) {
	tests := []struct {
		name    string
		current DerivedSnapshot
		prior   DerivedSnapshot
	}{
		{
			name:    "Absent prior value",
			current: snapshotWith("1050000", "", "", ""),
			prior:   snapshotWith("", "", "", ""),
		},
		{
			name:    "Absent current value",
			current: snapshotWith("", "", "", ""),
			prior:   snapshotWith("1000000", "", "", ""),
		},
		{
			// Zero priors are excluded from flagging outright rather than
			// treated as an infinite change.
			name:    "Zero prior value",
			current: snapshotWith("1050000", "", "", ""),
			prior:   snapshotWith("0", "", "", ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ComparePeriods(tt.current, tt.prior, decimal.NewFromFloat(5.0))
			change := findChange(t, report, FieldTotalContractAmount)
			if change.ChangePercent != nil {
				t.Errorf("ChangePercent = %s, expected absent", change.ChangePercent)
			}
			if change.Significant {
				t.Error("field must not be flagged")
			}
			if report.HasSignificantChanges {
				t.Error("report must not carry a significant-change flag")
			}
		})
	}
}

func TestComparePeriodsThresholdMonotonicity(t *testing.T) {
	current := snapshotWith("1100000", "950000", "150000", "47.50")
	prior := snapshotWith("1000000", "900000", "100000", "45.00")

	flagged := func(threshold float64) int {
		report := ComparePeriods(current, prior, decimal.NewFromFloat(threshold))
		n := 0
		for _, change := range report.Changes {
			if change.Significant {
				n++
			}
		}
		return n
	}

	previous := flagged(0)
	for _, threshold := range []float64{1, 2.5, 5, 10, 25, 50, 100} {
		count := flagged(threshold)
		if count > previous {
			t.Errorf("raising threshold to %.1f grew the flag set from %d to %d", threshold, previous, count)
		}
		previous = count
	}
}

func TestComparePeriodsReportShape(t *testing.T) {
	report := ComparePeriods(DerivedSnapshot{}, DerivedSnapshot{}, DefaultThresholdPercent)

	if len(report.Changes) != 4 {
		t.Fatalf("expected 4 tracked fields, got %d", len(report.Changes))
	}
	expectedOrder := []string{
		FieldTotalContractAmount,
		FieldEstimatedFinalCost,
		FieldJobMarginAtCompletion,
		FieldPercentCompletion,
	}
	for i, field := range expectedOrder {
		if report.Changes[i].Field != field {
			t.Errorf("Changes[%d] = %s, expected %s", i, report.Changes[i].Field, field)
		}
	}
	if !report.ThresholdPercent.Equal(DefaultThresholdPercent) {
		t.Errorf("ThresholdPercent = %s, expected %s", report.ThresholdPercent, DefaultThresholdPercent)
	}
}
