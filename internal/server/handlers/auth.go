package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/authctx"
	"github.com/iudanet/taskhub/internal/server/cookies"
	"github.com/iudanet/taskhub/internal/server/session"
	"github.com/iudanet/taskhub/pkg/api"
)

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	responder
	auth *auth.Service
	jar  *cookies.Jar
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, authService *auth.Service, jar *cookies.Jar) *AuthHandler {
	return &AuthHandler{
		responder: responder{logger: logger},
		auth:      authService,
		jar:       jar,
	}
}

// Register обрабатывает POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode register request", slog.Any("error", err))
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}

	profile, err := h.auth.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		h.sendServiceError(ctx, w, "register", err)
		return
	}

	h.sendOK(w, http.StatusCreated,
		"Registration successful. Please check your email for the OTP.", toUserResponse(profile))
}

// Verify обрабатывает POST /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}

	if err := h.auth.Verify(ctx, req.Email, req.OTP); err != nil {
		h.sendServiceError(ctx, w, "verify", err)
		return
	}

	h.sendOK(w, http.StatusOK, "Email verified successfully", nil)
}

// Login обрабатывает POST /api/auth/login.
// The refresh secret is returned only as a cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "email and password are required")
		return
	}

	pair, err := h.auth.Login(ctx, req.Email, req.Password, requestMeta(r))
	if err != nil {
		h.sendServiceError(ctx, w, "login", err)
		return
	}

	h.jar.SetRefresh(w, pair.RefreshToken)

	message := "Logged in"
	if pair.MustChangePassword {
		message = "Logged in. Password change required."
	}
	h.sendOK(w, http.StatusOK, message, toTokenResponse(pair))
}

// Refresh обрабатывает POST /api/auth/refresh.
// Every failure clears the refresh cookie; the client must log in again.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := h.jar.Refresh(r)
	if raw == "" {
		h.jar.ClearRefresh(w)
		h.sendError(w, http.StatusUnauthorized, api.CodeInvalidRefresh, "Refresh token missing")
		return
	}

	pair, err := h.auth.Refresh(ctx, raw, requestMeta(r))
	if err != nil {
		h.logger.InfoContext(ctx, "Refresh rejected", slog.Any("error", err))
		h.jar.ClearRefresh(w)
		if !isSessionError(err) {
			err = session.ErrInvalidRefreshToken
		}
		h.sendServiceError(ctx, w, "refresh", err)
		return
	}

	h.jar.SetRefresh(w, pair.RefreshToken)
	h.sendOK(w, http.StatusOK, "Token refreshed", toTokenResponse(pair))
}

// Logout обрабатывает POST /api/auth/logout.
// Only the presented session ends; other devices stay logged in.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if raw := h.jar.Refresh(r); raw != "" {
		if err := h.auth.Logout(ctx, raw); err != nil {
			h.logger.WarnContext(ctx, "Logout revoke failed", slog.Any("error", err))
		}
	}

	h.jar.ClearRefresh(w)
	h.jar.ClearAccess(w)
	h.sendOK(w, http.StatusOK, "Logged out", nil)
}

// ChangePassword обрабатывает PUT /api/auth/change-password (требует аутентификации)
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := authctx.IdentityFrom(ctx)
	if !ok {
		h.sendError(w, http.StatusUnauthorized, api.CodeMissingCredential, "Unauthorized")
		return
	}

	var req api.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "oldPassword and newPassword are required")
		return
	}

	if err := h.auth.ChangePassword(ctx, id.UserID, req.OldPassword, req.NewPassword); err != nil {
		h.sendServiceError(ctx, w, "change_password", err)
		return
	}

	h.jar.ClearRefresh(w)
	h.jar.ClearAccess(w)
	h.sendOK(w, http.StatusOK, "Password changed. Please log in again.", nil)
}

// ForgotPassword обрабатывает POST /api/auth/forgot-password.
// The answer does not reveal whether the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}

	if err := h.auth.ForgotPassword(ctx, req.Email); err != nil {
		h.sendServiceError(ctx, w, "forgot_password", err)
		return
	}

	h.sendOK(w, http.StatusOK, "If an account exists, a password reset link has been sent to your email.", nil)
}

// ResetPassword обрабатывает POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "invalid request body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "token and newPassword are required")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "Passwords do not match")
		return
	}

	if err := h.auth.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		h.sendServiceError(ctx, w, "reset_password", err)
		return
	}

	h.sendOK(w, http.StatusOK, "Password has been reset. Please log in.", nil)
}

func isSessionError(err error) bool {
	return errors.Is(err, session.ErrInvalidRefreshToken) || errors.Is(err, session.ErrSuspectedReuse)
}

func toTokenResponse(pair *auth.TokenPair) api.TokenResponse {
	return api.TokenResponse{
		User:                toUserResponse(&pair.User),
		AccessToken:         pair.AccessToken,
		ExpiresIn:           pair.ExpiresIn,
		ForceChangePassword: pair.MustChangePassword,
	}
}

func toUserResponse(p *models.Profile) *api.UserResponse {
	return &api.UserResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Email:              p.Email,
		Role:               p.Role.String(),
		MustChangePassword: p.MustChangePassword,
	}
}
