package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/tsireporting/wip-report/internal/store"
	"github.com/tsireporting/wip-report/internal/wip"
)

func dec(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return &d
}

func TestPeriodsXLSX(t *testing.T) {
	input := wip.PeriodInput{
		OriginalContractAmount:  dec(t, "1000000"),
		ChangeOrderAmount:       dec(t, "50000"),
		CostToDate:              dec(t, "300000"),
		EstimatedCostToComplete: dec(t, "700000"),
	}
	periods := []store.Period{
		{
			JobNumber:   "J-100",
			ProjectName: "Riverside Plant",
			ReportDate:  "2025-07-31",
			Input:       input,
			Derived:     wip.ComputeDerivedSnapshot(input, nil),
		},
		{
			JobNumber:   "J-200",
			ProjectName: "Warehouse Annex",
			ReportDate:  "2025-07-31",
		},
	}

	data, err := NewService(zap.NewNop()).PeriodsXLSX(periods)
	if err != nil {
		t.Fatalf("PeriodsXLSX failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to reopen workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Job #" {
		t.Errorf("first header = %q, expected Job #", rows[0][0])
	}
	if rows[1][0] != "J-100" {
		t.Errorf("first data cell = %q, expected J-100", rows[1][0])
	}

	// GAAP % Complete for J-100 is column L.
	percent, err := f.GetCellValue(sheetName, "L2")
	if err != nil {
		t.Fatalf("GetCellValue failed: %v", err)
	}
	if percent != "30" {
		t.Errorf("percent completion cell = %q, expected 30", percent)
	}

	// The second period has no inputs, so its numeric cells are empty.
	empty, err := f.GetCellValue(sheetName, "F3")
	if err != nil {
		t.Fatalf("GetCellValue failed: %v", err)
	}
	if empty != "" {
		t.Errorf("total contract cell = %q, expected empty", empty)
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 7, 31, 10, 0, 0, 0, time.UTC)
	if got := Filename(now); got != "wip_report_2025-07-31.xlsx" {
		t.Errorf("Filename = %q", got)
	}
}
