package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tsireporting/wip-report/internal/export"
	"github.com/tsireporting/wip-report/internal/service"
	"github.com/tsireporting/wip-report/internal/store"
	"github.com/tsireporting/wip-report/internal/wip"
	"github.com/tsireporting/wip-report/pkg/datetime"
)

// periodInputPayload carries the user-entered figures. A JSON null (or an
// omitted key) means the figure was not entered; it is never coerced to zero.
type periodInputPayload struct {
	OriginalContractAmount  *decimal.Decimal `json:"originalContractAmount"`
	ChangeOrderAmount       *decimal.Decimal `json:"changeOrderAmount"`
	CostToDate              *decimal.Decimal `json:"costToDate"`
	EstimatedCostToComplete *decimal.Decimal `json:"estimatedCostToComplete"`
	RevenueBilledToDate     *decimal.Decimal `json:"revenueBilledToDate"`
	AdditionalEntryRequired *decimal.Decimal `json:"additionalEntryRequired"`
}

func (p periodInputPayload) toInput() wip.PeriodInput {
	return wip.PeriodInput{
		OriginalContractAmount:  p.OriginalContractAmount,
		ChangeOrderAmount:       p.ChangeOrderAmount,
		CostToDate:              p.CostToDate,
		EstimatedCostToComplete: p.EstimatedCostToComplete,
		RevenueBilledToDate:     p.RevenueBilledToDate,
		AdditionalEntryRequired: p.AdditionalEntryRequired,
	}
}

func buildInputPayload(input wip.PeriodInput) periodInputPayload {
	return periodInputPayload{
		OriginalContractAmount:  input.OriginalContractAmount,
		ChangeOrderAmount:       input.ChangeOrderAmount,
		CostToDate:              input.CostToDate,
		EstimatedCostToComplete: input.EstimatedCostToComplete,
		RevenueBilledToDate:     input.RevenueBilledToDate,
		AdditionalEntryRequired: input.AdditionalEntryRequired,
	}
}

// validate rejects negative cumulative figures. Contract adjustments may be
// negative (deductive change orders), cumulative to-date figures may not.
func (p periodInputPayload) validate() []string {
	var problems []string
	nonNegative := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"costToDate", p.CostToDate},
		{"estimatedCostToComplete", p.EstimatedCostToComplete},
		{"revenueBilledToDate", p.RevenueBilledToDate},
	}
	for _, field := range nonNegative {
		if field.value != nil && field.value.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s must not be negative", field.name))
		}
	}
	return problems
}

type derivedPayload struct {
	TotalContractAmount     *decimal.Decimal `json:"totalContractAmount"`
	ContractVarianceVsPrior *decimal.Decimal `json:"contractVarianceVsPrior"`

	EstimatedFinalCost       *decimal.Decimal `json:"estimatedFinalCost"`
	FinalCostVarianceVsPrior *decimal.Decimal `json:"finalCostVarianceVsPrior"`

	PercentCompletion               *decimal.Decimal `json:"percentCompletion"`
	RevenueEarnedToDate             *decimal.Decimal `json:"revenueEarnedToDate"`
	JobMarginToDate                 *decimal.Decimal `json:"jobMarginToDate"`
	JobMarginToDatePercentOfRevenue *decimal.Decimal `json:"jobMarginToDatePercentOfRevenue"`

	JobMarginAtCompletion      *decimal.Decimal `json:"jobMarginAtCompletion"`
	JobMarginVarianceVsPrior   *decimal.Decimal `json:"jobMarginVarianceVsPrior"`
	JobMarginPercentOfContract *decimal.Decimal `json:"jobMarginPercentOfContract"`

	CostsInExcessOfBillings   *decimal.Decimal `json:"costsInExcessOfBillings"`
	BillingsInExcessOfRevenue *decimal.Decimal `json:"billingsInExcessOfRevenue"`
}

func buildDerivedPayload(derived wip.DerivedSnapshot) derivedPayload {
	return derivedPayload{
		TotalContractAmount:             derived.TotalContractAmount,
		ContractVarianceVsPrior:         derived.ContractVarianceVsPrior,
		EstimatedFinalCost:              derived.EstimatedFinalCost,
		FinalCostVarianceVsPrior:        derived.FinalCostVarianceVsPrior,
		PercentCompletion:               derived.PercentCompletion,
		RevenueEarnedToDate:             derived.RevenueEarnedToDate,
		JobMarginToDate:                 derived.JobMarginToDate,
		JobMarginToDatePercentOfRevenue: derived.JobMarginToDatePercentOfRevenue,
		JobMarginAtCompletion:           derived.JobMarginAtCompletion,
		JobMarginVarianceVsPrior:        derived.JobMarginVarianceVsPrior,
		JobMarginPercentOfContract:      derived.JobMarginPercentOfContract,
		CostsInExcessOfBillings:         derived.CostsInExcessOfBillings,
		BillingsInExcessOfRevenue:       derived.BillingsInExcessOfRevenue,
	}
}

// periodPatchFields maps the JSON keys of the input set onto their patch
// slots, so an update can tell an omitted key from an explicit null.
var periodPatchFields = map[string]func(*service.InputPatch) *service.FieldPatch{
	"originalContractAmount":  func(p *service.InputPatch) *service.FieldPatch { return &p.OriginalContractAmount },
	"changeOrderAmount":       func(p *service.InputPatch) *service.FieldPatch { return &p.ChangeOrderAmount },
	"costToDate":              func(p *service.InputPatch) *service.FieldPatch { return &p.CostToDate },
	"estimatedCostToComplete": func(p *service.InputPatch) *service.FieldPatch { return &p.EstimatedCostToComplete },
	"revenueBilledToDate":     func(p *service.InputPatch) *service.FieldPatch { return &p.RevenueBilledToDate },
	"additionalEntryRequired": func(p *service.InputPatch) *service.FieldPatch { return &p.AdditionalEntryRequired },
}

// decodeInputPatch reads an update body, recording which input keys were
// actually submitted. Keys outside the input set are ignored.
func decodeInputPatch(body io.Reader) (service.InputPatch, error) {
	var patch service.InputPatch
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return patch, err
	}

	for key, value := range raw {
		selector, known := periodPatchFields[key]
		if !known {
			continue
		}
		field := selector(&patch)
		field.Set = true
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		var d decimal.Decimal
		if err := json.Unmarshal(value, &d); err != nil {
			return patch, fmt.Errorf("invalid value for %s", key)
		}
		field.Value = &d
	}
	return patch, nil
}

type periodRequest struct {
	ReportDate string             `json:"reportDate"`
	Input      periodInputPayload `json:"input"`
}

type periodResponse struct {
	ID          int64              `json:"id"`
	ProjectID   int64              `json:"projectId"`
	ProjectName string             `json:"projectName,omitempty"`
	JobNumber   string             `json:"jobNumber"`
	ReportDate  string             `json:"reportDate"`
	Input       periodInputPayload `json:"input"`
	Derived     derivedPayload     `json:"derived"`
	CreatedBy   string             `json:"createdBy,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func buildPeriodResponse(period *store.Period) periodResponse {
	resp := periodResponse{
		ID:          period.ID,
		ProjectID:   period.ProjectID,
		ProjectName: period.ProjectName,
		JobNumber:   period.JobNumber,
		ReportDate:  period.ReportDate,
		Input:       buildInputPayload(period.Input),
		Derived:     buildDerivedPayload(period.Derived),
		CreatedAt:   period.CreatedAt,
		UpdatedAt:   period.UpdatedAt,
	}
	if period.CreatedBy != uuid.Nil {
		resp.CreatedBy = period.CreatedBy.String()
	}
	return resp
}

func buildPeriodResponses(periods []store.Period) []periodResponse {
	responses := make([]periodResponse, 0, len(periods))
	for i := range periods {
		responses = append(responses, buildPeriodResponse(&periods[i]))
	}
	return responses
}

func (h *handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid project id", "server.handleCreatePeriod")
		return
	}

	var req periodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to decode period", "server.handleCreatePeriod")
		return
	}
	if _, err := datetime.ParseReportDate(req.ReportDate); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "server.handleCreatePeriod")
		return
	}
	if problems := req.Input.validate(); len(problems) > 0 {
		h.respondError(w, http.StatusBadRequest, strings.Join(problems, "; "), "server.handleCreatePeriod")
		return
	}

	claims := claimsFromContext(r.Context())
	createdBy, err := uuid.Parse(claims.Subject)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "invalid token subject", "server.handleCreatePeriod")
		return
	}

	period, err := h.periods.Create(r.Context(), service.PeriodDraft{
		ProjectID:  projectID,
		ReportDate: req.ReportDate,
		Input:      req.Input.toInput(),
		CreatedBy:  store.User{ID: createdBy},
	})
	if err != nil {
		h.respondStoreError(w, err, "server.handleCreatePeriod")
		return
	}
	h.writeJSON(w, http.StatusCreated, buildPeriodResponse(period))
}

func (h *handler) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid period id", "server.handleGetPeriod")
		return
	}

	period, err := h.store.GetPeriod(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "server.handleGetPeriod")
		return
	}
	h.writeJSON(w, http.StatusOK, buildPeriodResponse(period))
}

func (h *handler) handleUpdatePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid period id", "server.handleUpdatePeriod")
		return
	}

	patch, err := decodeInputPatch(r.Body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to decode period input", "server.handleUpdatePeriod")
		return
	}
	if problems := buildInputPayload(patch.Apply(wip.PeriodInput{})).validate(); len(problems) > 0 {
		h.respondError(w, http.StatusBadRequest, strings.Join(problems, "; "), "server.handleUpdatePeriod")
		return
	}

	period, err := h.periods.Update(r.Context(), id, patch)
	if err != nil {
		h.respondStoreError(w, err, "server.handleUpdatePeriod")
		return
	}
	h.writeJSON(w, http.StatusOK, buildPeriodResponse(period))
}

func (h *handler) handleDeletePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid period id", "server.handleDeletePeriod")
		return
	}

	if err := h.store.DeletePeriod(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "server.handleDeletePeriod")
		return
	}

	h.logger.Info("period deleted",
		zap.String("op", "server.handleDeletePeriod"),
		zap.Int64("periodId", id),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleListProjectPeriods(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid project id", "server.handleListProjectPeriods")
		return
	}

	limit, offset := queryLimit(r)
	periods, err := h.store.ListPeriods(r.Context(), store.PeriodFilter{
		ProjectID: projectID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.respondStoreError(w, err, "server.handleListProjectPeriods")
		return
	}
	h.writeJSON(w, http.StatusOK, buildPeriodResponses(periods))
}

func (h *handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if date := query.Get("reportDate"); date != "" {
		if _, err := datetime.ParseReportDate(date); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), "server.handleListPeriods")
			return
		}
	}

	limit, offset := queryLimit(r)
	periods, err := h.store.ListPeriods(r.Context(), store.PeriodFilter{
		ReportDate: query.Get("reportDate"),
		JobNumber:  strings.TrimSpace(query.Get("jobNumber")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.respondStoreError(w, err, "server.handleListPeriods")
		return
	}
	h.writeJSON(w, http.StatusOK, buildPeriodResponses(periods))
}

func (h *handler) handleLatestPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.periods.Latest(r.Context())
	if err != nil {
		h.respondStoreError(w, err, "server.handleLatestPeriods")
		return
	}
	h.writeJSON(w, http.StatusOK, buildPeriodResponses(periods))
}

type comparisonResponse struct {
	ProjectID   int64                 `json:"projectId"`
	JobNumber   string                `json:"jobNumber"`
	ProjectName string                `json:"projectName"`
	CurrentDate string                `json:"currentDate"`
	PriorDate   string                `json:"priorDate,omitempty"`
	Report      *wip.ComparisonReport `json:"report,omitempty"`
}

func (h *handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid project id", "server.handleCompare")
		return
	}

	query := r.URL.Query()
	currentDate := query.Get("current")
	if _, err := datetime.ParseReportDate(currentDate); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "server.handleCompare")
		return
	}
	priorDate := query.Get("prior")
	if priorDate != "" {
		if _, err := datetime.ParseReportDate(priorDate); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), "server.handleCompare")
			return
		}
		if before, _ := datetime.DateBeforeDate(priorDate, currentDate); !before {
			h.respondError(w, http.StatusBadRequest, "prior must be before current", "server.handleCompare")
			return
		}
	}

	threshold := h.threshold
	if raw := query.Get("threshold"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid threshold", "server.handleCompare")
			return
		}
		threshold = parsed
	}

	comparison, err := h.periods.Compare(r.Context(), projectID, currentDate, priorDate, threshold)
	if err != nil {
		h.respondStoreError(w, err, "server.handleCompare")
		return
	}

	response := comparisonResponse{
		ProjectID:   comparison.ProjectID,
		JobNumber:   comparison.JobNumber,
		ProjectName: comparison.ProjectName,
		CurrentDate: comparison.Current.ReportDate,
		Report:      comparison.Report,
	}
	if comparison.Prior != nil {
		response.PriorDate = comparison.Prior.ReportDate
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	reportDate := r.URL.Query().Get("reportDate")
	if reportDate != "" {
		if _, err := datetime.ParseReportDate(reportDate); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), "server.handleDashboardSummary")
			return
		}
	}

	summary, err := h.periods.DashboardSummary(r.Context(), reportDate)
	if err != nil {
		h.respondStoreError(w, err, "server.handleDashboardSummary")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	reportDate := r.URL.Query().Get("reportDate")

	var periods []store.Period
	var err error
	if reportDate == "" {
		periods, err = h.periods.Latest(r.Context())
	} else {
		if _, parseErr := datetime.ParseReportDate(reportDate); parseErr != nil {
			h.respondError(w, http.StatusBadRequest, parseErr.Error(), "server.handleExportXLSX")
			return
		}
		periods, err = h.store.ListPeriods(r.Context(), store.PeriodFilter{ReportDate: reportDate})
	}
	if err != nil {
		h.respondStoreError(w, err, "server.handleExportXLSX")
		return
	}

	workbook, err := h.exporter.PeriodsXLSX(periods)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to build workbook", "server.handleExportXLSX")
		return
	}

	h.logger.Info("workbook exported",
		zap.String("op", "server.handleExportXLSX"),
		zap.Int("periods", len(periods)),
	)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(time.Now())))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(workbook); err != nil {
		h.logger.Error("failed to write workbook response",
			zap.String("op", "server.handleExportXLSX"),
			zap.Error(err),
		)
	}
}
