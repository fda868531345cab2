// Package export renders reporting periods as an XLSX workbook for download.
package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/tsireporting/wip-report/internal/store"
)

const sheetName = "WIP Report"

var headers = []string{
	"Job #",
	"Project Name",
	"Report Date",
	"Original Contract",
	"Change Orders",
	"Total Contract",
	"Contract Variance",
	"Cost to Date",
	"Est. Cost to Complete",
	"Est. Final Cost",
	"Final Cost Variance",
	"GAAP % Complete",
	"Revenue Earned (GAAP)",
	"Job Margin to Date",
	"Job Margin % Revenue",
	"Est. Job Margin",
	"Job Margin Variance",
	"Job Margin % Contract",
	"Revenue Billed",
	"Costs in Excess",
	"Billings in Excess",
	"Additional Entry",
}

// Service turns period listings into workbook bytes.
type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// PeriodsXLSX builds a single-sheet workbook with one row per period, raw
// inputs and derived fields side by side. Absent values become empty cells.
func (s *Service) PeriodsXLSX(periods []store.Period) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, period := range periods {
		row := i + 2
		values := []any{
			period.JobNumber,
			period.ProjectName,
			period.ReportDate,
			cellValue(period.Input.OriginalContractAmount),
			cellValue(period.Input.ChangeOrderAmount),
			cellValue(period.Derived.TotalContractAmount),
			cellValue(period.Derived.ContractVarianceVsPrior),
			cellValue(period.Input.CostToDate),
			cellValue(period.Input.EstimatedCostToComplete),
			cellValue(period.Derived.EstimatedFinalCost),
			cellValue(period.Derived.FinalCostVarianceVsPrior),
			cellValue(period.Derived.PercentCompletion),
			cellValue(period.Derived.RevenueEarnedToDate),
			cellValue(period.Derived.JobMarginToDate),
			cellValue(period.Derived.JobMarginToDatePercentOfRevenue),
			cellValue(period.Derived.JobMarginAtCompletion),
			cellValue(period.Derived.JobMarginVarianceVsPrior),
			cellValue(period.Derived.JobMarginPercentOfContract),
			cellValue(period.Input.RevenueBilledToDate),
			cellValue(period.Derived.CostsInExcessOfBillings),
			cellValue(period.Derived.BillingsInExcessOfRevenue),
			cellValue(period.Input.AdditionalEntryRequired),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "B", 28)
	_ = f.SetColWidth(sheetName, "C", "C", 12)
	_ = f.SetColWidth(sheetName, "D", "V", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("periods exported",
		zap.String("op", "export.PeriodsXLSX"),
		zap.Int("rows", len(periods)),
		zap.Duration("duration", time.Since(start)),
	)
	return buf.Bytes(), nil
}

// cellValue renders an optional decimal as a spreadsheet number, empty when
// absent.
func cellValue(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	value, _ := d.Float64()
	return value
}

// Filename returns the attachment name for an export generated now.
func Filename(now time.Time) string {
	return fmt.Sprintf("wip_report_%s.xlsx", now.Format("2006-01-02"))
}
