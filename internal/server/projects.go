package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tsireporting/wip-report/internal/store"
	"github.com/tsireporting/wip-report/pkg/constants"
)

type projectRequest struct {
	JobNumber              string           `json:"jobNumber"`
	Name                   string           `json:"name"`
	OriginalContractAmount *decimal.Decimal `json:"originalContractAmount"`
	IsActive               *bool            `json:"isActive"`
}

type projectResponse struct {
	ID                     int64            `json:"id"`
	JobNumber              string           `json:"jobNumber"`
	Name                   string           `json:"name"`
	OriginalContractAmount *decimal.Decimal `json:"originalContractAmount"`
	IsActive               bool             `json:"isActive"`
	CreatedAt              time.Time        `json:"createdAt"`
	UpdatedAt              time.Time        `json:"updatedAt"`
}

func buildProjectResponse(project *store.Project) projectResponse {
	return projectResponse{
		ID:                     project.ID,
		JobNumber:              project.JobNumber,
		Name:                   project.Name,
		OriginalContractAmount: project.OriginalContractAmount,
		IsActive:               project.IsActive,
		CreatedAt:              project.CreatedAt,
		UpdatedAt:              project.UpdatedAt,
	}
}

func (req *projectRequest) validate() []string {
	var problems []string
	if strings.TrimSpace(req.JobNumber) == "" {
		problems = append(problems, "jobNumber is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name is required")
	}
	if req.OriginalContractAmount != nil && req.OriginalContractAmount.IsNegative() {
		problems = append(problems, "originalContractAmount must not be negative")
	}
	return problems
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryLimit reads limit/offset query parameters, applying the default and
// cap for listings.
func queryLimit(r *http.Request) (limit, offset int) {
	limit = constants.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func (h *handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to decode project", "server.handleCreateProject")
		return
	}
	if problems := req.validate(); len(problems) > 0 {
		h.respondError(w, http.StatusBadRequest, strings.Join(problems, "; "), "server.handleCreateProject")
		return
	}

	project := &store.Project{
		JobNumber:              strings.TrimSpace(req.JobNumber),
		Name:                   strings.TrimSpace(req.Name),
		OriginalContractAmount: req.OriginalContractAmount,
		IsActive:               true,
	}
	if req.IsActive != nil {
		project.IsActive = *req.IsActive
	}

	if err := h.store.CreateProject(r.Context(), project); err != nil {
		h.respondStoreError(w, err, "server.handleCreateProject")
		return
	}

	h.logger.Info("project created",
		zap.String("op", "server.handleCreateProject"),
		zap.Int64("projectId", project.ID),
		zap.String("jobNumber", project.JobNumber),
	)
	h.writeJSON(w, http.StatusCreated, buildProjectResponse(project))
}

func (h *handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid project id", "server.handleGetProject")
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "server.handleGetProject")
		return
	}
	h.writeJSON(w, http.StatusOK, buildProjectResponse(project))
}

func (h *handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryLimit(r)
	filter := store.ProjectFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:      limit,
		Offset:     offset,
	}

	projects, err := h.store.ListProjects(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, err, "server.handleListProjects")
		return
	}

	responses := make([]projectResponse, 0, len(projects))
	for i := range projects {
		responses = append(responses, buildProjectResponse(&projects[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

func (h *handler) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid project id", "server.handleUpdateProject")
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to decode project", "server.handleUpdateProject")
		return
	}
	if problems := req.validate(); len(problems) > 0 {
		h.respondError(w, http.StatusBadRequest, strings.Join(problems, "; "), "server.handleUpdateProject")
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "server.handleUpdateProject")
		return
	}

	project.JobNumber = strings.TrimSpace(req.JobNumber)
	project.Name = strings.TrimSpace(req.Name)
	project.OriginalContractAmount = req.OriginalContractAmount
	if req.IsActive != nil {
		project.IsActive = *req.IsActive
	}

	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		h.respondStoreError(w, err, "server.handleUpdateProject")
		return
	}
	h.writeJSON(w, http.StatusOK, buildProjectResponse(project))
}

func (h *handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid project id", "server.handleDeleteProject")
		return
	}

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "server.handleDeleteProject")
		return
	}

	h.logger.Info("project deleted",
		zap.String("op", "server.handleDeleteProject"),
		zap.Int64("projectId", id),
	)
	w.WriteHeader(http.StatusNoContent)
}
