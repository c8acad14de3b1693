package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/authctx"
	"github.com/iudanet/taskhub/internal/server/cookies"
	"github.com/iudanet/taskhub/pkg/api"
)

// UserHandler обрабатывает запросы к учетным записям
type UserHandler struct {
	responder
	auth *auth.Service
	jar  *cookies.Jar
}

// NewUserHandler создает новый handler учетных записей
func NewUserHandler(logger *slog.Logger, authService *auth.Service, jar *cookies.Jar) *UserHandler {
	return &UserHandler{
		responder: responder{logger: logger},
		auth:      authService,
		jar:       jar,
	}
}

// Me обрабатывает GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	profile, err := h.auth.Profile(ctx, id.UserID)
	if err != nil {
		h.sendServiceError(ctx, w, "profile", err)
		return
	}

	h.sendOK(w, http.StatusOK, "", toUserResponse(profile))
}

// Sessions обрабатывает GET /api/users/me/sessions
func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	sessions, err := h.auth.Sessions(ctx, id.UserID)
	if err != nil {
		h.sendServiceError(ctx, w, "sessions", err)
		return
	}

	resp := make([]api.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, api.SessionResponse{
			ID:           s.ID,
			IssuedAt:     s.IssuedAt,
			ExpiresAt:    s.ExpiresAt,
			Revoked:      s.Revoked,
			RevokedAt:    s.RevokedAt,
			RevokeReason: string(s.RevokeReason),
			UserAgent:    s.UserAgent,
			IP:           s.IP,
		})
	}

	h.sendOK(w, http.StatusOK, "", resp)
}

// RevokeSessions обрабатывает DELETE /api/users/me/sessions.
// Logs the user out on every device, including this one.
func (h *UserHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	n, err := h.auth.RevokeAllSessions(ctx, id.UserID)
	if err != nil {
		h.sendServiceError(ctx, w, "revoke_sessions", err)
		return
	}

	h.jar.ClearRefresh(w)
	h.jar.ClearAccess(w)
	h.sendOK(w, http.StatusOK, "All sessions revoked", map[string]int{"revoked": n})
}

// ChangeRole обрабатывает PATCH /api/users/{id}/role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req api.ChangeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	role, err := rbac.Parse(req.RoleName)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "Invalid role")
		return
	}

	profile, err := h.auth.ChangeRole(ctx, id, r.PathValue("id"), role)
	if err != nil {
		h.sendServiceError(ctx, w, "change_role", err)
		return
	}

	h.sendOK(w, http.StatusOK, "Role updated", toUserResponse(profile))
}

// Create обрабатывает POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req api.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}

	var role rbac.Role
	if req.RoleName != "" {
		parsed, err := rbac.Parse(req.RoleName)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, api.CodeValidation, "Invalid role")
			return
		}
		role = parsed
	}

	profile, err := h.auth.CreateUser(ctx, id, auth.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		h.sendServiceError(ctx, w, "create_user", err)
		return
	}

	h.sendOK(w, http.StatusCreated, "User created", toUserResponse(profile))
}

// Delete обрабатывает DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.auth.DeleteUser(ctx, id, r.PathValue("id")); err != nil {
		h.sendServiceError(ctx, w, "delete_user", err)
		return
	}

	h.sendOK(w, http.StatusOK, "User deleted", nil)
}

// identity returns the caller attached by the gate, answering 401 when absent
func (h *UserHandler) identity(w http.ResponseWriter, r *http.Request) (authctx.Identity, bool) {
	id, ok := authctx.IdentityFrom(r.Context())
	if !ok {
		h.sendError(w, http.StatusUnauthorized, api.CodeMissingCredential, "Unauthorized")
	}
	return id, ok
}
