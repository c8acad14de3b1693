// Package server собирает HTTP маршруты и цепочку middleware
package server

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/cookies"
	"github.com/iudanet/taskhub/internal/server/handlers"
	"github.com/iudanet/taskhub/internal/server/jwt"
	"github.com/iudanet/taskhub/internal/server/metrics"
	"github.com/iudanet/taskhub/internal/server/middleware"
	"github.com/iudanet/taskhub/internal/server/web"
)

// RateLimitedPaths are the credential endpoints guarded by the auth limiter
var RateLimitedPaths = []string{
	"/api/auth/register",
	"/api/auth/verify",
	"/api/auth/login",
	"/api/auth/forgot-password",
	"/api/auth/reset-password",
}

// Deps are the collaborators the router wires together
type Deps struct {
	Logger  *slog.Logger
	Auth    *auth.Service
	Tokens  *jwt.Service
	Jar     *cookies.Jar
	Metrics *metrics.Metrics // may be nil

	// AuthLimiter guards RateLimitedPaths; GlobalLimiter everything else. Both may be nil.
	AuthLimiter   middleware.Limiter
	GlobalLimiter middleware.Limiter

	// TrustedProxies may set the client address through X-Forwarded-For
	TrustedProxies []netip.Prefix

	Checks  map[string]handlers.Pinger
	Version string
}

// NewRouter returns the complete HTTP handler
func NewRouter(d Deps) http.Handler {
	logger := d.Logger

	authHandler := handlers.NewAuthHandler(logger, d.Auth, d.Jar)
	userHandler := handlers.NewUserHandler(logger, d.Auth, d.Jar)
	healthHandler := handlers.NewHealthHandler(logger, d.Version, d.Checks)

	gate := middleware.NewGate(d.Tokens, logger, d.Metrics, middleware.DefaultResolvers(d.Jar)...)
	bridge := web.NewBridge(d.Tokens, d.Auth, d.Auth, d.Jar, logger, web.WithMetrics(d.Metrics))
	pages := web.NewPages(d.Auth, d.Jar, logger)

	requireRole := func(min rbac.Role, h http.HandlerFunc) http.Handler {
		return gate.Required(middleware.RequireRole(min, logger)(h))
	}

	mux := http.NewServeMux()

	// API: аутентификация
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/verify", authHandler.Verify)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.Handle("PUT /api/auth/change-password", gate.Required(http.HandlerFunc(authHandler.ChangePassword)))
	mux.HandleFunc("POST /api/auth/forgot-password", authHandler.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", authHandler.ResetPassword)

	// API: учетные записи
	mux.Handle("GET /api/users/me", gate.Required(http.HandlerFunc(userHandler.Me)))
	mux.Handle("GET /api/users/me/sessions", gate.Required(http.HandlerFunc(userHandler.Sessions)))
	mux.Handle("DELETE /api/users/me/sessions", gate.Required(http.HandlerFunc(userHandler.RevokeSessions)))
	mux.Handle("PATCH /api/users/{id}/role", requireRole(rbac.RoleManager, userHandler.ChangeRole))
	mux.Handle("POST /api/users", requireRole(rbac.RoleAdmin, userHandler.Create))
	mux.Handle("DELETE /api/users/{id}", requireRole(rbac.RoleAdmin, userHandler.Delete))

	mux.HandleFunc("GET /api/health", healthHandler.Health)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Страницы
	mux.HandleFunc("GET /login", pages.Login)
	mux.HandleFunc("GET /logout", pages.Logout)
	mux.Handle("GET /profile/change-password", bridge.Required(http.HandlerFunc(pages.ChangePasswordForm)))
	mux.Handle("POST /profile/change-password", bridge.Required(http.HandlerFunc(pages.ChangePassword)))
	mux.Handle("GET /admin", bridge.Required(bridge.RequireRole(rbac.RoleAdmin)(http.HandlerFunc(pages.Dashboard))))
	mux.Handle("GET /{$}", bridge.Required(http.HandlerFunc(pages.Dashboard)))

	limits := make([]middleware.PathRateLimit, 0, len(RateLimitedPaths))
	if d.AuthLimiter != nil {
		for _, path := range RateLimitedPaths {
			limits = append(limits, middleware.PathRateLimit{Path: path, Limiter: d.AuthLimiter})
		}
	}

	var handler http.Handler = mux
	if len(limits) > 0 || d.GlobalLimiter != nil {
		handler = middleware.RateLimitByPathMiddleware(limits, d.GlobalLimiter, logger)(handler)
	}
	handler = d.Metrics.Instrument(handler)
	handler = middleware.LoggingWithSkip(logger, []string{"/api/health", "/metrics"})(handler)
	handler = middleware.RealIPMiddleware(d.TrustedProxies)(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return handler
}
