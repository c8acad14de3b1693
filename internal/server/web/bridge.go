package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/authctx"
	"github.com/iudanet/taskhub/internal/server/cookies"
	"github.com/iudanet/taskhub/internal/server/metrics"
	"github.com/iudanet/taskhub/internal/server/middleware"
	"github.com/iudanet/taskhub/internal/server/session"
)

//go:generate moq -out bridge_mock.go . Refresher ProfileLoader

// Refresher exchanges a refresh secret for a new token pair
type Refresher interface {
	Refresh(ctx context.Context, raw string, meta session.Metadata) (*auth.TokenPair, error)
}

// ProfileLoader loads display fields and account flags for rendered pages
type ProfileLoader interface {
	Profile(ctx context.Context, userID string) (*models.Profile, error)
}

const (
	DefaultLoginPath          = "/login"
	DefaultChangePasswordPath = "/profile/change-password"
)

type profileKey struct{}

// ProfileFrom returns the profile loaded by the bridge, if any
func ProfileFrom(ctx context.Context) (*models.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(*models.Profile)
	return p, ok && p != nil
}

// Bridge authenticates server-rendered pages from cookies.
// An expired access cookie is renewed from the refresh cookie at most once per request.
type Bridge struct {
	verifier           middleware.Verifier
	refresher          Refresher
	profiles           ProfileLoader
	jar                *cookies.Jar
	logger             *slog.Logger
	metrics            *metrics.Metrics
	policy             PasswordChangePolicy
	loginPath          string
	changePasswordPath string
}

// BridgeOption configures Bridge
type BridgeOption func(*Bridge)

// WithPolicy sets the pages reachable during a pending password change
func WithPolicy(p PasswordChangePolicy) BridgeOption {
	return func(b *Bridge) {
		b.policy = p
	}
}

// WithLoginPath sets the redirect target for anonymous visitors
func WithLoginPath(path string) BridgeOption {
	return func(b *Bridge) {
		if path != "" {
			b.loginPath = path
		}
	}
}

// WithChangePasswordPath sets the interstitial page for pending password changes
func WithChangePasswordPath(path string) BridgeOption {
	return func(b *Bridge) {
		if path != "" {
			b.changePasswordPath = path
		}
	}
}

// WithMetrics enables bridge refresh counters
func WithMetrics(m *metrics.Metrics) BridgeOption {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// NewBridge creates a page session bridge
func NewBridge(
	verifier middleware.Verifier,
	refresher Refresher,
	profiles ProfileLoader,
	jar *cookies.Jar,
	logger *slog.Logger,
	opts ...BridgeOption,
) *Bridge {
	b := &Bridge{
		verifier:           verifier,
		refresher:          refresher,
		profiles:           profiles,
		jar:                jar,
		logger:             logger,
		policy:             NewPasswordChangePolicy(),
		loginPath:          DefaultLoginPath,
		changePasswordPath: DefaultChangePasswordPath,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LoginPath returns the login page path
func (b *Bridge) LoginPath() string {
	return b.loginPath
}

// Required redirects anonymous visitors to the login page
func (b *Bridge) Required(next http.Handler) http.Handler {
	return b.handler(next, true)
}

// Optional serves anonymous visitors without an identity
func (b *Bridge) Optional(next http.Handler) http.Handler {
	return b.handler(next, false)
}

func (b *Bridge) handler(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, token, ok := b.authenticate(w, r)
		if !ok {
			if required {
				http.Redirect(w, r, b.loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx = authctx.WithIdentity(ctx, id)
		ctx = authctx.WithToken(ctx, token)

		profile, err := b.profiles.Profile(ctx, id.UserID)
		if err != nil {
			b.logger.DebugContext(ctx, "Profile load failed", slog.String("user_id", id.UserID), slog.Any("error", err))
		} else {
			ctx = context.WithValue(ctx, profileKey{}, profile)
			if profile.MustChangePassword && required && !b.policy.Allowed(r.URL.Path) {
				b.logger.DebugContext(ctx, "Password change pending, redirecting",
					slog.String("user_id", id.UserID),
					slog.String("path", r.URL.Path),
				)
				http.Redirect(w, r, b.changePasswordPath, http.StatusFound)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate verifies the access cookie and falls back to one refresh.
// It writes replacement cookies on success and clears stale ones on failure.
func (b *Bridge) authenticate(w http.ResponseWriter, r *http.Request) (authctx.Identity, string, bool) {
	ctx := r.Context()

	access, hasAccess := b.jar.Read(r, b.jar.AccessName())
	if hasAccess && access.Err == nil {
		claims, err := b.verifier.Verify(access.Raw)
		if err == nil {
			return claims.Identity(), access.Raw, true
		}
		b.logger.DebugContext(ctx, "Access cookie rejected", slog.Any("error", err))
	}

	raw := b.jar.Refresh(r)
	if raw == "" {
		if _, present := b.jar.Read(r, b.jar.RefreshName()); present {
			b.jar.ClearRefresh(w)
		}
		if hasAccess {
			b.jar.ClearAccess(w)
		}
		return authctx.Identity{}, "", false
	}

	pair, err := b.refresher.Refresh(ctx, raw, session.Metadata{
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	})
	if err != nil {
		b.metrics.BridgeRefresh("failed")
		b.logger.DebugContext(ctx, "Page refresh failed", slog.Any("error", err))
		b.jar.ClearRefresh(w)
		if hasAccess {
			b.jar.ClearAccess(w)
		}
		return authctx.Identity{}, "", false
	}

	b.jar.SetRefresh(w, pair.RefreshToken)
	b.jar.SetAccess(w, pair.AccessToken)

	claims, err := b.verifier.Verify(pair.AccessToken)
	if err != nil {
		b.metrics.BridgeRefresh("failed")
		b.logger.ErrorContext(ctx, "Freshly issued access token rejected", slog.Any("error", err))
		return authctx.Identity{}, "", false
	}

	b.metrics.BridgeRefresh("ok")
	return claims.Identity(), pair.AccessToken, true
}

// RequireRole guards pages by rank. It must run behind Required or Optional.
// Anonymous visitors are sent to the login page; lower ranks get a 403 page.
func (b *Bridge) RequireRole(minimum rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authctx.IdentityFrom(r.Context())
			if !ok {
				http.Redirect(w, r, b.loginPath, http.StatusFound)
				return
			}
			if !rbac.AtLeast(id.Role, minimum) {
				b.logger.WarnContext(r.Context(), "Page forbidden",
					slog.String("user_id", id.UserID),
					slog.String("role", id.Role.String()),
					slog.String("required", minimum.String()),
				)
				renderForbidden(w, b.logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
