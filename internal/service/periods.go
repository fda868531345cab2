// Package service orchestrates the calculation cascade against the store:
// period create/update with automatic recalculation, month-over-month
// comparison, and reporting summaries.
package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tsireporting/wip-report/internal/store"
	"github.com/tsireporting/wip-report/internal/wip"
)

// PeriodService owns the lifecycle of reporting periods. Derived fields are
// recomputed from the complete input set on every write; stored snapshots are
// replaced wholesale, never patched.
type PeriodService struct {
	store  store.Store
	logger *zap.Logger
}

// NewPeriodService wires the service. A nil logger is replaced with a no-op
// logger.
func NewPeriodService(st store.Store, logger *zap.Logger) *PeriodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{store: st, logger: logger}
}

// PeriodDraft is the caller-supplied portion of a new period.
type PeriodDraft struct {
	ProjectID  int64
	ReportDate string
	Input      wip.PeriodInput
	CreatedBy  store.User
}

// Create records a new reporting period, deriving every calculated field from
// the draft inputs and the project's chronologically preceding period.
func (s *PeriodService) Create(ctx context.Context, draft PeriodDraft) (*store.Period, error) {
	project, err := s.store.GetProject(ctx, draft.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("look up project %d: %w", draft.ProjectID, err)
	}

	prior, err := s.priorSnapshot(ctx, draft.ProjectID, draft.ReportDate)
	if err != nil {
		return nil, err
	}

	period := &store.Period{
		ProjectID:  draft.ProjectID,
		JobNumber:  project.JobNumber,
		ReportDate: draft.ReportDate,
		Input:      draft.Input,
		Derived:    wip.ComputeDerivedSnapshot(draft.Input, prior),
		CreatedBy:  draft.CreatedBy.ID,
	}
	if err := s.store.CreatePeriod(ctx, period); err != nil {
		return nil, fmt.Errorf("create period: %w", err)
	}
	period.ProjectName = project.Name

	s.logger.Info("period created",
		zap.String("op", "service.Create"),
		zap.Int64("projectId", draft.ProjectID),
		zap.String("reportDate", draft.ReportDate),
		zap.String("jobNumber", project.JobNumber),
	)
	return period, nil
}

// FieldPatch is one tri-state update field: leave the stored value alone when
// not Set, clear it when Set with a nil Value, replace it otherwise.
type FieldPatch struct {
	Set   bool
	Value *decimal.Decimal
}

// InputPatch carries the submitted subset of a period's input fields.
type InputPatch struct {
	OriginalContractAmount  FieldPatch
	ChangeOrderAmount       FieldPatch
	CostToDate              FieldPatch
	EstimatedCostToComplete FieldPatch
	RevenueBilledToDate     FieldPatch
	AdditionalEntryRequired FieldPatch
}

// Apply merges the patch over an input set, returning the merged copy.
func (p InputPatch) Apply(input wip.PeriodInput) wip.PeriodInput {
	fields := []struct {
		patch  FieldPatch
		target **decimal.Decimal
	}{
		{p.OriginalContractAmount, &input.OriginalContractAmount},
		{p.ChangeOrderAmount, &input.ChangeOrderAmount},
		{p.CostToDate, &input.CostToDate},
		{p.EstimatedCostToComplete, &input.EstimatedCostToComplete},
		{p.RevenueBilledToDate, &input.RevenueBilledToDate},
		{p.AdditionalEntryRequired, &input.AdditionalEntryRequired},
	}
	for _, field := range fields {
		if field.patch.Set {
			*field.target = field.patch.Value
		}
	}
	return input
}

// Update merges the submitted fields over the stored input set and recomputes
// the entire derived snapshot, replacing the stored row wholesale. Fields left
// out of the patch keep their stored values; fields submitted as null are
// cleared. The prior period is looked up fresh, so a corrected prior month
// propagates into the variances here.
func (s *PeriodService) Update(ctx context.Context, id int64, patch InputPatch) (*store.Period, error) {
	period, err := s.store.GetPeriod(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("look up period %d: %w", id, err)
	}

	prior, err := s.priorSnapshot(ctx, period.ProjectID, period.ReportDate)
	if err != nil {
		return nil, err
	}

	period.Input = patch.Apply(period.Input)
	period.Derived = wip.ComputeDerivedSnapshot(period.Input, prior)
	if err := s.store.ReplacePeriod(ctx, period); err != nil {
		return nil, fmt.Errorf("replace period %d: %w", id, err)
	}

	s.logger.Info("period recalculated",
		zap.String("op", "service.Update"),
		zap.Int64("periodId", id),
		zap.String("reportDate", period.ReportDate),
	)
	return period, nil
}

func (s *PeriodService) priorSnapshot(ctx context.Context, projectID int64, before string) (*wip.PriorSnapshot, error) {
	priorPeriod, err := s.store.PriorPeriod(ctx, projectID, before)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up prior period: %w", err)
	}
	prior := priorPeriod.Derived.Prior()
	return &prior, nil
}

// Comparison is the month-over-month report for one project.
type Comparison struct {
	ProjectID   int64                 `json:"projectId"`
	JobNumber   string                `json:"jobNumber"`
	ProjectName string                `json:"projectName"`
	Current     *store.Period         `json:"-"`
	Prior       *store.Period         `json:"-"`
	Report      *wip.ComparisonReport `json:"report,omitempty"`
}

// HasSignificantChanges reports whether any tracked field moved past the
// threshold. Without a prior period there is nothing to compare.
func (c *Comparison) HasSignificantChanges() bool {
	return c.Report != nil && c.Report.HasSignificantChanges
}

// Compare builds the change report between a project's period at currentDate
// and either the period at priorDate or, when priorDate is empty, the
// chronologically preceding period.
func (s *PeriodService) Compare(ctx context.Context, projectID int64, currentDate, priorDate string, threshold decimal.Decimal) (*Comparison, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("look up project %d: %w", projectID, err)
	}

	current, err := s.store.GetPeriodByDate(ctx, projectID, currentDate)
	if err != nil {
		return nil, fmt.Errorf("look up period %s: %w", currentDate, err)
	}

	var prior *store.Period
	if priorDate != "" {
		prior, err = s.store.GetPeriodByDate(ctx, projectID, priorDate)
	} else {
		prior, err = s.store.PriorPeriod(ctx, projectID, currentDate)
	}
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("look up prior period: %w", err)
	}

	comparison := &Comparison{
		ProjectID:   projectID,
		JobNumber:   project.JobNumber,
		ProjectName: project.Name,
		Current:     current,
		Prior:       prior,
	}
	if prior != nil {
		report := wip.ComparePeriods(current.Derived, prior.Derived, threshold)
		comparison.Report = &report
	}

	s.logger.Debug("periods compared",
		zap.String("op", "service.Compare"),
		zap.Int64("projectId", projectID),
		zap.String("currentDate", currentDate),
		zap.Bool("priorFound", prior != nil),
		zap.Bool("significant", comparison.HasSignificantChanges()),
	)
	return comparison, nil
}

// Summary aggregates the latest (or date-pinned) snapshot of every project.
type Summary struct {
	ReportDate              string           `json:"reportDate"`
	TotalProjects           int              `json:"totalProjects"`
	TotalContractValue      decimal.Decimal  `json:"totalContractValue"`
	TotalCostToDate         decimal.Decimal  `json:"totalCostToDate"`
	TotalBilledToDate       decimal.Decimal  `json:"totalBilledToDate"`
	TotalEstimatedFinalCost decimal.Decimal  `json:"totalEstimatedFinalCost"`
	OverallMargin           *decimal.Decimal `json:"overallMargin"`
	OverallMarginPercent    *decimal.Decimal `json:"overallMarginPercent"`
}

// DashboardSummary totals the portfolio. With an empty reportDate it uses
// every project's most recent period; otherwise only periods at that exact
// date count. Absent fields contribute nothing to the totals.
func (s *PeriodService) DashboardSummary(ctx context.Context, reportDate string) (*Summary, error) {
	var periods []store.Period
	var err error
	if reportDate == "" {
		periods, err = s.store.LatestPeriods(ctx)
	} else {
		periods, err = s.store.ListPeriods(ctx, store.PeriodFilter{ReportDate: reportDate})
	}
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}

	summary := &Summary{
		ReportDate:    reportDate,
		TotalProjects: len(periods),
	}
	if reportDate == "" {
		summary.ReportDate = "latest"
	}

	sawFinalCost := false
	sawContract := false
	for _, period := range periods {
		if v := period.Derived.TotalContractAmount; v != nil {
			summary.TotalContractValue = summary.TotalContractValue.Add(*v)
			sawContract = true
		}
		if v := period.Input.CostToDate; v != nil {
			summary.TotalCostToDate = summary.TotalCostToDate.Add(*v)
		}
		if v := period.Input.RevenueBilledToDate; v != nil {
			summary.TotalBilledToDate = summary.TotalBilledToDate.Add(*v)
		}
		if v := period.Derived.EstimatedFinalCost; v != nil {
			summary.TotalEstimatedFinalCost = summary.TotalEstimatedFinalCost.Add(*v)
			sawFinalCost = true
		}
	}

	if sawFinalCost && sawContract {
		margin := summary.TotalContractValue.Sub(summary.TotalEstimatedFinalCost)
		summary.OverallMargin = wip.Ptr(margin)
		if summary.TotalContractValue.IsPositive() {
			summary.OverallMarginPercent = wip.Ptr(margin.Div(summary.TotalContractValue).Mul(decimal.NewFromInt(100)).Round(2))
		}
	}
	return summary, nil
}

// Latest returns the most recent period of every project.
func (s *PeriodService) Latest(ctx context.Context) ([]store.Period, error) {
	return s.store.LatestPeriods(ctx)
}
