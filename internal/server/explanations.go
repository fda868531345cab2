package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsireporting/wip-report/internal/store"
)

// explainableFields enumerates the period figures a note may be attached to.
var explainableFields = map[string]struct{}{
	"originalContractAmount":          {},
	"changeOrderAmount":               {},
	"costToDate":                      {},
	"estimatedCostToComplete":         {},
	"revenueBilledToDate":             {},
	"additionalEntryRequired":         {},
	"totalContractAmount":             {},
	"contractVarianceVsPrior":         {},
	"estimatedFinalCost":              {},
	"finalCostVarianceVsPrior":        {},
	"percentCompletion":               {},
	"revenueEarnedToDate":             {},
	"jobMarginToDate":                 {},
	"jobMarginToDatePercentOfRevenue": {},
	"jobMarginAtCompletion":           {},
	"jobMarginVarianceVsPrior":        {},
	"jobMarginPercentOfContract":      {},
	"costsInExcessOfBillings":         {},
	"billingsInExcessOfRevenue":       {},
}

type explanationRequest struct {
	FieldName string `json:"fieldName"`
	Note      string `json:"note"`
}

type explanationResponse struct {
	ID            int64     `json:"id"`
	PeriodID      int64     `json:"periodId"`
	FieldName     string    `json:"fieldName"`
	Note          string    `json:"note"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByName string    `json:"createdByName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func buildExplanationResponse(explanation *store.Explanation) explanationResponse {
	return explanationResponse{
		ID:            explanation.ID,
		PeriodID:      explanation.PeriodID,
		FieldName:     explanation.FieldName,
		Note:          explanation.Note,
		CreatedBy:     explanation.CreatedBy.String(),
		CreatedByName: explanation.CreatedByName,
		CreatedAt:     explanation.CreatedAt,
	}
}

func (h *handler) handleCreateExplanation(w http.ResponseWriter, r *http.Request) {
	periodID, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid period id", "server.handleCreateExplanation")
		return
	}

	var req explanationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to decode explanation", "server.handleCreateExplanation")
		return
	}
	if _, known := explainableFields[req.FieldName]; !known {
		h.respondError(w, http.StatusBadRequest, "unknown field name", "server.handleCreateExplanation")
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		h.respondError(w, http.StatusBadRequest, "note is required", "server.handleCreateExplanation")
		return
	}

	// The period must exist before a note can reference it.
	if _, err := h.store.GetPeriod(r.Context(), periodID); err != nil {
		h.respondStoreError(w, err, "server.handleCreateExplanation")
		return
	}

	claims := claimsFromContext(r.Context())
	createdBy, err := uuid.Parse(claims.Subject)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "invalid token subject", "server.handleCreateExplanation")
		return
	}

	explanation := &store.Explanation{
		PeriodID:  periodID,
		FieldName: req.FieldName,
		Note:      strings.TrimSpace(req.Note),
		CreatedBy: createdBy,
	}
	if err := h.store.CreateExplanation(r.Context(), explanation); err != nil {
		h.respondStoreError(w, err, "server.handleCreateExplanation")
		return
	}
	explanation.CreatedByName = claims.Username

	h.logger.Info("explanation added",
		zap.String("op", "server.handleCreateExplanation"),
		zap.Int64("periodId", periodID),
		zap.String("fieldName", req.FieldName),
	)
	h.writeJSON(w, http.StatusCreated, buildExplanationResponse(explanation))
}

func (h *handler) handleListExplanations(w http.ResponseWriter, r *http.Request) {
	periodID, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid period id", "server.handleListExplanations")
		return
	}

	explanations, err := h.store.ListExplanations(r.Context(), periodID, r.URL.Query().Get("field"))
	if err != nil {
		h.respondStoreError(w, err, "server.handleListExplanations")
		return
	}

	responses := make([]explanationResponse, 0, len(explanations))
	for i := range explanations {
		responses = append(responses, buildExplanationResponse(&explanations[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

func (h *handler) handleDeleteExplanation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid explanation id", "server.handleDeleteExplanation")
		return
	}

	if err := h.store.DeleteExplanation(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "server.handleDeleteExplanation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
