package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/taskhub/internal/crypto"
	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/server/metrics"
	"github.com/iudanet/taskhub/internal/server/storage"
)

const (
	DefaultTTL          = 7 * 24 * time.Hour
	DefaultGrace        = 10 * time.Second
	DefaultStoreTimeout = 3 * time.Second
)

// Metadata describes the client a session was issued to
type Metadata struct {
	UserAgent string
	IP        string
}

// Rotation is the outcome of a successful rotate
type Rotation struct {
	Session *models.RefreshSession
	// Raw is the new refresh secret; it is not recoverable later
	Raw string
}

// Service implements issue, rotate and revoke over a SessionStorage
type Service struct {
	store        storage.SessionStorage
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	ttl          time.Duration
	grace        time.Duration
	retention    time.Duration
	storeTimeout time.Duration
}

// Option configures Service
type Option func(*Service)

// WithTTL sets the lifetime of newly issued sessions
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithGrace sets how long a rotated secret is tolerated as a retry; 0 is strict single use
func WithGrace(grace time.Duration) Option {
	return func(s *Service) {
		if grace >= 0 {
			s.grace = grace
		}
	}
}

// WithRetention sets how long expired records are kept for reuse detection
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention >= 0 {
			s.retention = retention
		}
	}
}

// WithStoreTimeout bounds every store call
func WithStoreTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.storeTimeout = timeout
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics enables instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a rotation service
func NewService(store storage.SessionStorage, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		logger:       logger,
		now:          time.Now,
		ttl:          DefaultTTL,
		grace:        DefaultGrace,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retention == 0 {
		s.retention = s.ttl
	}
	return s
}

// TTL returns the lifetime of newly issued sessions
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new session for userID and returns its raw secret
func (s *Service) Issue(ctx context.Context, userID string, meta Metadata) (string, *models.RefreshSession, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("user id cannot be empty")
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	raw, session, err := s.newSession(userID, meta, s.now(), uuid.NewString())
	if err != nil {
		return "", nil, err
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to store refresh session: %w", err)
	}

	s.metrics.SessionIssued()
	s.logger.InfoContext(ctx, "Refresh session issued",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID),
	)

	return raw, session, nil
}

// Rotate exchanges a presented refresh secret for a new one.
// An empty userID derives the owner from the stored record.
func (s *Service) Rotate(ctx context.Context, raw, userID string, meta Metadata) (*Rotation, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	now := s.now()

	current, err := s.resolve(ctx, raw, userID, now)
	if err != nil {
		return nil, err
	}

	nextID := uuid.NewString()
	nextRaw, next, err := s.newSession(current.UserID, meta, now, nextID)
	if err != nil {
		return nil, errors.Join(ErrInvalidRefreshToken, err)
	}

	err = s.store.MarkRotated(ctx, current.SecretHash, current.UserID, nextID, now.Add(s.grace), now)
	if err != nil {
		if errors.Is(err, storage.ErrSessionConflict) {
			s.metrics.RefreshFailed("race_lost")
			s.logger.InfoContext(ctx, "Concurrent rotation lost the race",
				slog.String("user_id", current.UserID),
				slog.String("session_id", current.ID),
			)
			return nil, ErrInvalidRefreshToken
		}
		return nil, s.failClosed(ctx, "mark rotated", err)
	}

	if err := s.store.CreateSession(ctx, next); err != nil {
		// old record is already rotated, the client has to log in again
		return nil, s.failClosed(ctx, "store successor", err)
	}

	s.metrics.SessionIssued()
	s.metrics.SessionRotated()
	s.logger.InfoContext(ctx, "Refresh session rotated",
		slog.String("user_id", current.UserID),
		slog.String("session_id", current.ID),
		slog.String("replaced_by", nextID),
	)

	return &Rotation{Raw: nextRaw, Session: next}, nil
}

// Lookup verifies a refresh secret without rotating it.
// Revoked secrets are classified exactly as Rotate does, cascade included.
func (s *Service) Lookup(ctx context.Context, raw string) (*models.RefreshSession, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.resolve(ctx, raw, "", s.now())
}

// RevokeOne revokes the session holding raw with reason logout.
// Unknown or already revoked secrets are not an error.
func (s *Service) RevokeOne(ctx context.Context, raw, userID string) error {
	if raw == "" {
		return nil
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	hash := crypto.HashSecret(raw)
	owner := userID
	if owner == "" {
		current, err := s.store.GetSessionByHash(ctx, hash)
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load refresh session: %w", err)
		}
		owner = current.UserID
	}

	err := s.store.RevokeSession(ctx, hash, owner, models.ReasonLogout, s.now())
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to revoke refresh session: %w", err)
	}

	s.metrics.SessionsRevoked(string(models.ReasonLogout), 1)
	s.logger.InfoContext(ctx, "Refresh session revoked", slog.String("user_id", owner))

	return nil
}

// RevokeAll revokes every unrevoked session of userID.
// It returns only after the store has committed the change.
func (s *Service) RevokeAll(ctx context.Context, userID string, reason models.RevokeReason) (int, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	n, err := s.store.RevokeUserSessions(ctx, userID, reason, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	s.metrics.SessionsRevoked(string(reason), n)
	s.logger.InfoContext(ctx, "User sessions revoked",
		slog.String("user_id", userID),
		slog.String("reason", string(reason)),
		slog.Int("count", n),
	)

	return n, nil
}

// List returns the session history of userID, newest first
func (s *Service) List(ctx context.Context, userID string) ([]*models.RefreshSession, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	sessions, err := s.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Cleanup deletes records that expired longer than the retention period ago
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	n, err := s.store.DeleteExpiredSessions(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return n, nil
}

// resolve loads the record behind raw and returns it only if it is active
func (s *Service) resolve(ctx context.Context, raw, userID string, now time.Time) (*models.RefreshSession, error) {
	if raw == "" {
		return nil, ErrInvalidRefreshToken
	}

	current, err := s.store.GetSessionByHash(ctx, crypto.HashSecret(raw))
	if errors.Is(err, storage.ErrSessionNotFound) {
		s.metrics.RefreshFailed("not_found")
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, s.failClosed(ctx, "lookup", err)
	}

	if userID != "" && current.UserID != userID {
		s.metrics.RefreshFailed("owner_mismatch")
		s.logger.WarnContext(ctx, "Refresh token presented for another identity",
			slog.String("claimed_user_id", userID),
			slog.String("session_id", current.ID),
		)
		return nil, ErrInvalidRefreshToken
	}

	if current.Revoked {
		return nil, s.classifyRevoked(ctx, current, now)
	}

	if current.Expired(now) {
		s.metrics.RefreshFailed("expired")
		return nil, ErrInvalidRefreshToken
	}

	return current, nil
}

// classifyRevoked decides whether a revoked record signals compromise
func (s *Service) classifyRevoked(ctx context.Context, current *models.RefreshSession, now time.Time) error {
	switch {
	case current.RevokeReason == models.ReasonLogout:
		s.metrics.RefreshFailed("logged_out")
		return ErrInvalidRefreshToken
	case current.RevokeReason == models.ReasonPasswordChange || current.RevokeReason == models.ReasonPasswordReset:
		// stale cookie of another device; a cascade would end the session opened with the new password
		s.metrics.RefreshFailed("password_changed")
		return ErrInvalidRefreshToken
	case current.RevokeReason == models.ReasonRotated && now.Before(current.ExpiresAt):
		// near-simultaneous retry of a just-rotated secret
		s.metrics.RefreshFailed("grace_retry")
		return ErrInvalidRefreshToken
	}

	n, err := s.store.RevokeUserSessions(ctx, current.UserID, models.ReasonSuspectedReuse, now)

	s.metrics.ReuseDetected()
	s.metrics.SessionsRevoked(string(models.ReasonSuspectedReuse), n)
	s.logger.WarnContext(ctx, "Refresh token reuse detected, revoking session family",
		slog.String("user_id", current.UserID),
		slog.String("session_id", current.ID),
		slog.String("revoke_reason", string(current.RevokeReason)),
		slog.Int("revoked", n),
	)

	if err != nil {
		return errors.Join(ErrSuspectedReuse, fmt.Errorf("failed to revoke session family: %w", err))
	}
	return ErrSuspectedReuse
}

func (s *Service) failClosed(ctx context.Context, op string, err error) error {
	s.metrics.RefreshFailed("store_error")
	s.logger.ErrorContext(ctx, "Session store failure",
		slog.String("op", op),
		slog.Any("error", err),
	)
	return errors.Join(ErrInvalidRefreshToken, fmt.Errorf("%s: %w", op, err))
}

func (s *Service) newSession(userID string, meta Metadata, now time.Time, id string) (string, *models.RefreshSession, error) {
	raw, err := crypto.GenerateRefreshSecret()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	return raw, &models.RefreshSession{
		ID:         id,
		UserID:     userID,
		SecretHash: crypto.HashSecret(raw),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
	}, nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}
