package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/middleware"
	"github.com/iudanet/taskhub/internal/server/session"
	"github.com/iudanet/taskhub/pkg/api"
)

// maxBodyBytes ограничивает размер JSON тела запроса
const maxBodyBytes = 1 << 20

// responder содержит общие методы формирования JSON ответов
type responder struct {
	logger *slog.Logger
}

// sendJSON отправляет JSON ответ
func (h responder) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendOK отправляет успешный конверт
func (h responder) sendOK(w http.ResponseWriter, statusCode int, message string, data any) {
	h.sendJSON(w, api.Response{Success: true, Message: message, Data: data}, statusCode)
}

// sendError отправляет JSON ответ с ошибкой
func (h responder) sendError(w http.ResponseWriter, statusCode int, code, message string) {
	h.sendJSON(w, api.ErrorResponse{Success: false, Code: code, Message: message}, statusCode)
}

// sendServiceError maps auth and session errors onto HTTP statuses
func (h responder) sendServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, validationMessage(err))
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.sendError(w, http.StatusUnauthorized, api.CodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, auth.ErrNotVerified):
		h.sendError(w, http.StatusForbidden, api.CodeNotVerified, "Please verify your email before logging in")
	case errors.Is(err, auth.ErrEmailTaken):
		h.sendError(w, http.StatusConflict, api.CodeConflict, "Email already registered")
	case errors.Is(err, auth.ErrInvalidOTP):
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "Invalid or expired OTP")
	case errors.Is(err, auth.ErrInvalidResetToken):
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "Invalid or expired reset token")
	case errors.Is(err, auth.ErrWrongPassword):
		h.sendError(w, http.StatusBadRequest, api.CodeValidation, "Old password incorrect")
	case errors.Is(err, auth.ErrUserNotFound):
		h.sendError(w, http.StatusNotFound, api.CodeNotFound, "User not found")
	case errors.Is(err, auth.ErrInsufficientRole):
		h.sendError(w, http.StatusForbidden, api.CodeInsufficientRole, "Insufficient privilege")
	case errors.Is(err, session.ErrSuspectedReuse):
		h.sendError(w, http.StatusUnauthorized, api.CodeSuspectedReuse, "Session revoked, please log in again")
	case errors.Is(err, session.ErrInvalidRefreshToken):
		h.sendError(w, http.StatusUnauthorized, api.CodeInvalidRefresh, "Invalid refresh token")
	default:
		h.logger.ErrorContext(ctx, "Request failed", slog.String("op", op), slog.Any("error", err))
		h.sendError(w, http.StatusInternalServerError, api.CodeInternal, "Internal server error")
	}
}

// decodeJSON читает тело запроса в dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// requestMeta собирает метаданные клиента для refresh-сессии
func requestMeta(r *http.Request) session.Metadata {
	return session.Metadata{
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	}
}

// validationMessage strips the sentinel prefix from a wrapped validation error
func validationMessage(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, auth.ErrInvalidInput.Error()+": "); ok {
		return rest
	}
	return msg
}
