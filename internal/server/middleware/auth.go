package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/authctx"
	"github.com/iudanet/taskhub/internal/server/cookies"
	"github.com/iudanet/taskhub/internal/server/jwt"
	"github.com/iudanet/taskhub/internal/server/metrics"
	"github.com/iudanet/taskhub/pkg/api"
)

// ErrMissingCredential indicates that no channel carried an access assertion
var ErrMissingCredential = errors.New("missing credential")

// Channel names the transport an access assertion arrived on
type Channel string

const (
	ChannelNone         Channel = ""
	ChannelBearer       Channel = "bearer"
	ChannelSignedCookie Channel = "signed_cookie"
	ChannelCookie       Channel = "cookie"
)

// Resolution is the result of a single resolver.
// Err is set when the channel was present but its value could not be decoded.
type Resolution struct {
	Err     error
	Channel Channel
	Value   string
}

// Present reports whether the channel carried a value
func (r Resolution) Present() bool {
	return r.Channel != ChannelNone
}

// Resolver extracts a candidate access assertion from one channel
type Resolver func(r *http.Request) Resolution

// Verifier validates access assertions
type Verifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// BearerResolver reads "Authorization: Bearer <token>"
func BearerResolver() Resolver {
	return func(r *http.Request) Resolution {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return Resolution{}
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return Resolution{}
		}
		return Resolution{Channel: ChannelBearer, Value: token}
	}
}

// SignedCookieResolver reads the access cookie when it carries a signature
func SignedCookieResolver(jar *cookies.Jar) Resolver {
	return func(r *http.Request) Resolution {
		if !jar.Signing() {
			return Resolution{}
		}
		v, ok := jar.Read(r, jar.AccessName())
		if !ok || !v.Signed {
			return Resolution{}
		}
		return Resolution{Channel: ChannelSignedCookie, Value: v.Raw, Err: v.Err}
	}
}

// CookieResolver reads an unsigned access cookie
func CookieResolver(jar *cookies.Jar) Resolver {
	return func(r *http.Request) Resolution {
		v, ok := jar.Read(r, jar.AccessName())
		if !ok || v.Signed {
			return Resolution{}
		}
		return Resolution{Channel: ChannelCookie, Value: v.Raw}
	}
}

// DefaultResolvers returns bearer, signed cookie and plain cookie in priority order
func DefaultResolvers(jar *cookies.Jar) []Resolver {
	return []Resolver{
		BearerResolver(),
		SignedCookieResolver(jar),
		CookieResolver(jar),
	}
}

// Gate authenticates API requests from an ordered list of credential channels
type Gate struct {
	verifier  Verifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	resolvers []Resolver
}

// NewGate creates a gate; m may be nil
func NewGate(verifier Verifier, logger *slog.Logger, m *metrics.Metrics, resolvers ...Resolver) *Gate {
	return &Gate{
		verifier:  verifier,
		logger:    logger,
		metrics:   m,
		resolvers: resolvers,
	}
}

// Authenticate resolves and verifies the request credential.
// The first present channel decides the outcome; later channels are never consulted.
func (g *Gate) Authenticate(r *http.Request) (authctx.Identity, string, Channel, error) {
	for _, resolve := range g.resolvers {
		res := resolve(r)
		if !res.Present() {
			continue
		}
		if res.Err != nil {
			return authctx.Identity{}, "", res.Channel, errors.Join(jwt.ErrInvalidSignature, res.Err)
		}

		claims, err := g.verifier.Verify(res.Value)
		if err != nil {
			return authctx.Identity{}, "", res.Channel, err
		}
		return claims.Identity(), res.Value, res.Channel, nil
	}

	return authctx.Identity{}, "", ChannelNone, ErrMissingCredential
}

// Required rejects requests without a valid credential with 401
func (g *Gate) Required(next http.Handler) http.Handler {
	return g.handler(next, true)
}

// Optional passes requests without a valid credential through as anonymous
func (g *Gate) Optional(next http.Handler) http.Handler {
	return g.handler(next, false)
}

func (g *Gate) handler(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, token, channel, err := g.Authenticate(r)
		if err != nil {
			code := failureCode(err)
			g.metrics.GateDecision(channelLabel(channel), code)

			if !required {
				next.ServeHTTP(w, r)
				return
			}

			g.logger.DebugContext(ctx, "Request rejected by auth gate",
				slog.String("channel", string(channel)),
				slog.String("code", code),
				slog.Any("error", err),
			)
			writeError(w, http.StatusUnauthorized, code, failureMessage(code))
			return
		}

		g.metrics.GateDecision(channelLabel(channel), "ok")
		g.logger.DebugContext(ctx, "User authenticated",
			slog.String("user_id", id.UserID),
			slog.String("role", id.Role.String()),
			slog.String("channel", string(channel)),
		)

		ctx = authctx.WithIdentity(ctx, id)
		ctx = authctx.WithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only identities ranked at least minimum.
// It must run behind a gate; anonymous requests get 401.
func RequireRole(minimum rbac.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authctx.IdentityFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, api.CodeMissingCredential, failureMessage(api.CodeMissingCredential))
				return
			}

			if !rbac.AtLeast(id.Role, minimum) {
				logger.WarnContext(r.Context(), "Insufficient role",
					slog.String("user_id", id.UserID),
					slog.String("role", id.Role.String()),
					slog.String("required", minimum.String()),
				)
				writeError(w, http.StatusForbidden, api.CodeInsufficientRole, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return api.CodeMissingCredential
	case errors.Is(err, jwt.ErrExpiredAssertion):
		return api.CodeExpiredAssertion
	default:
		return api.CodeInvalidAssertion
	}
}

func failureMessage(code string) string {
	switch code {
	case api.CodeMissingCredential:
		return "Unauthorized"
	case api.CodeExpiredAssertion:
		return "Token expired"
	default:
		return "Invalid token"
	}
}

func channelLabel(c Channel) string {
	if c == ChannelNone {
		return "none"
	}
	return string(c)
}
