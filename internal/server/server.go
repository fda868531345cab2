// Package server exposes the reporting API over HTTP: authentication,
// project and period management, month-over-month comparison, dashboard
// summaries, and spreadsheet export.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tsireporting/wip-report/internal/auth"
	"github.com/tsireporting/wip-report/internal/export"
	"github.com/tsireporting/wip-report/internal/service"
	"github.com/tsireporting/wip-report/internal/store"
)

type handler struct {
	logger    *zap.Logger
	store     store.Store
	periods   *service.PeriodService
	exporter  *export.Service
	auth      *auth.Manager
	threshold decimal.Decimal
	version   string
}

// NewHandler constructs the HTTP handler that serves the reporting API.
func NewHandler(logger *zap.Logger, st store.Store, authManager *auth.Manager, threshold decimal.Decimal, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:    logger,
		store:     st,
		periods:   service.NewPeriodService(st, logger),
		exporter:  export.NewService(logger),
		auth:      authManager,
		threshold: threshold,
		version:   trimmedVersion,
	}

	mux := http.NewServeMux()

	// Unauthenticated endpoints
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/version", h.handleVersion)

	// Projects
	mux.HandleFunc("GET /api/projects", h.requireAuth(h.handleListProjects))
	mux.HandleFunc("POST /api/projects", h.requireAdmin(h.handleCreateProject))
	mux.HandleFunc("GET /api/projects/{id}", h.requireAuth(h.handleGetProject))
	mux.HandleFunc("PUT /api/projects/{id}", h.requireAdmin(h.handleUpdateProject))
	mux.HandleFunc("DELETE /api/projects/{id}", h.requireAdmin(h.handleDeleteProject))

	// Periods
	mux.HandleFunc("POST /api/projects/{id}/periods", h.requireAdmin(h.handleCreatePeriod))
	mux.HandleFunc("GET /api/projects/{id}/periods", h.requireAuth(h.handleListProjectPeriods))
	mux.HandleFunc("GET /api/projects/{id}/compare", h.requireAuth(h.handleCompare))
	mux.HandleFunc("GET /api/periods", h.requireAuth(h.handleListPeriods))
	mux.HandleFunc("GET /api/periods/latest", h.requireAuth(h.handleLatestPeriods))
	mux.HandleFunc("GET /api/periods/{id}", h.requireAuth(h.handleGetPeriod))
	mux.HandleFunc("PUT /api/periods/{id}", h.requireAdmin(h.handleUpdatePeriod))
	mux.HandleFunc("DELETE /api/periods/{id}", h.requireAdmin(h.handleDeletePeriod))

	// Explanations
	mux.HandleFunc("POST /api/periods/{id}/explanations", h.requireAuth(h.handleCreateExplanation))
	mux.HandleFunc("GET /api/periods/{id}/explanations", h.requireAuth(h.handleListExplanations))
	mux.HandleFunc("DELETE /api/explanations/{id}", h.requireAdmin(h.handleDeleteExplanation))

	// Users
	mux.HandleFunc("GET /api/users/me", h.requireAuth(h.handleCurrentUser))
	mux.HandleFunc("GET /api/users", h.requireAdmin(h.handleListUsers))
	mux.HandleFunc("GET /api/users/{id}", h.requireAdmin(h.handleGetUser))

	// Reporting
	mux.HandleFunc("GET /api/dashboard/summary", h.requireAuth(h.handleDashboardSummary))
	mux.HandleFunc("GET /api/export/xlsx", h.requireAuth(h.handleExportXLSX))

	return mux
}

type claimsContextKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims
}

// requireAuth verifies the bearer token and stores the claims in the request
// context.
func (h *handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.respondError(w, http.StatusUnauthorized, "missing bearer token", "server.requireAuth")
			return
		}

		claims, err := h.auth.ParseToken(strings.TrimSpace(token))
		if err != nil {
			h.respondError(w, http.StatusUnauthorized, "invalid or expired token", "server.requireAuth")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims)))
	}
}

// requireAdmin additionally restricts the endpoint to the admin role.
func (h *handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != auth.RoleAdmin {
			h.respondError(w, http.StatusForbidden, "admin role required", "server.requireAdmin")
			return
		}
		next(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to decode credentials", "server.handleLogin")
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.respondError(w, http.StatusUnauthorized, "invalid username or password", "server.handleLogin")
		return
	}

	token, err := h.auth.IssueToken(user.ID, user.Username, user.Role)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to issue token", "server.handleLogin")
		return
	}

	claims, err := h.auth.ParseToken(token)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to issue token", "server.handleLogin")
		return
	}

	h.logger.Info("user logged in",
		zap.String("op", "server.handleLogin"),
		zap.String("username", user.Username),
		zap.String("role", user.Role),
	)

	h.writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Username:  user.Username,
		Role:      user.Role,
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

// respondStoreError maps the store sentinels onto HTTP statuses.
func (h *handler) respondStoreError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not found", op)
	case errors.Is(err, store.ErrDuplicate):
		h.respondError(w, http.StatusConflict, "already exists", op)
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error(), op)
	}
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string, op string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	} else {
		h.logger.Debug("request rejected",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	}

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
