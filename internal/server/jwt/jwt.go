package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/authctx"
)

const (
	// DefaultIssuer is the iss claim of every access assertion
	DefaultIssuer = "taskhub"

	// DefaultAccessTTL is the lifetime of an access assertion
	DefaultAccessTTL = 15 * time.Minute
)

var (
	// ErrExpiredAssertion indicates that the assertion is past its expiry
	ErrExpiredAssertion = errors.New("access assertion expired")

	// ErrInvalidSignature indicates a signature mismatch or a foreign signing method
	ErrInvalidSignature = errors.New("access assertion signature invalid")

	// ErrMalformedAssertion indicates that the value is not a well-formed assertion
	ErrMalformedAssertion = errors.New("access assertion malformed")
)

// Claims is the claim set carried by an access assertion.
// The role is embedded by name so authorization never needs a lookup.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the request identity
func (c *Claims) Identity() authctx.Identity {
	return authctx.Identity{
		UserID: c.Subject,
		Role:   rbac.Role(c.Role),
		Name:   c.Name,
		Email:  c.Email,
	}
}

// Service signs and verifies access assertions with HS256
type Service struct {
	now    func() time.Time
	issuer string
	secret []byte
	ttl    time.Duration
}

// Option configures Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIssuer overrides the iss claim
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// NewService creates a new access assertion codec.
// secret should be a cryptographically secure random string.
func NewService(secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}

	s := &Service{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// TTL returns the configured assertion lifetime
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new access assertion for the identity.
// expiresIn is the lifetime in seconds.
func (s *Service) Issue(id authctx.Identity) (string, int64, error) {
	if id.UserID == "" {
		return "", 0, fmt.Errorf("identity subject cannot be empty")
	}

	now := s.now()
	claims := Claims{
		Role:  string(id.Role),
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, int64(s.ttl.Seconds()), nil
}

// Verify parses and validates an access assertion
func (s *Service) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrMalformedAssertion
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpiredAssertion, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedAssertion, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	default:
		// wrong issuer, not-yet-valid and missing claims
		return fmt.Errorf("%w: %w", ErrMalformedAssertion, err)
	}
}
