package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger проверяет доступность зависимости
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	checks  map[string]Pinger
	version string
	timeout time.Duration
}

// NewHealthHandler создает новый handler для health check.
// checks maps a dependency name to its health check.
func NewHealthHandler(logger *slog.Logger, version string, checks map[string]Pinger) *HealthHandler {
	if version == "" {
		version = "dev"
	}
	return &HealthHandler{
		logger:  logger,
		checks:  checks,
		version: version,
		timeout: 2 * time.Second,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Checks  map[string]string `json:"checks,omitempty"`
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
}

// Health обрабатывает GET /api/health.
// Any failing check turns the response into 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.ErrorContext(ctx, "Health check failed", slog.String("check", name), slog.Any("error", err))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
