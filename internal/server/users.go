package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tsireporting/wip-report/internal/store"
)

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func buildUserResponse(user *store.User) userResponse {
	return userResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Role:      user.Role,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}

// handleCurrentUser returns the account behind the presented token.
func (h *handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, err := h.store.GetUserByUsername(r.Context(), claims.Username)
	if err != nil {
		h.respondStoreError(w, err, "server.handleCurrentUser")
		return
	}
	h.writeJSON(w, http.StatusOK, buildUserResponse(user))
}

func (h *handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.respondStoreError(w, err, "server.handleListUsers")
		return
	}

	responses := make([]userResponse, 0, len(users))
	for i := range users {
		responses = append(responses, buildUserResponse(&users[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

func (h *handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid user id", "server.handleGetUser")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "server.handleGetUser")
		return
	}
	h.writeJSON(w, http.StatusOK, buildUserResponse(user))
}
