package storage

import (
	"context"
	"time"

	"github.com/iudanet/taskhub/internal/models"
)

// SessionStorage defines interface for refresh session persistence.
// Implementations must make MarkRotated and RevokeSession atomic
// with respect to concurrent callers presenting the same hash.
type SessionStorage interface {
	// CreateSession stores a new refresh session
	CreateSession(ctx context.Context, session *models.RefreshSession) error

	// GetSessionByHash retrieves a session by secret digest regardless of state
	// Returns ErrSessionNotFound if it doesn't exist
	GetSessionByHash(ctx context.Context, hash string) (*models.RefreshSession, error)

	// MarkRotated revokes an active session as rotated, links it to its successor
	// and shortens its expiry to graceUntil when that is earlier.
	// Returns ErrSessionConflict if the session was no longer active at now.
	MarkRotated(ctx context.Context, hash, userID, replacedBy string, graceUntil, now time.Time) error

	// RevokeSession revokes the single unrevoked session matching hash and owner
	// Returns ErrSessionNotFound if no such session exists
	RevokeSession(ctx context.Context, hash, userID string, reason models.RevokeReason, now time.Time) error

	// RevokeUserSessions revokes every unrevoked session of a user
	// Returns number of sessions revoked by this call
	RevokeUserSessions(ctx context.Context, userID string, reason models.RevokeReason, now time.Time) (int, error)

	// ListUserSessions returns all sessions of a user, newest first
	ListUserSessions(ctx context.Context, userID string) ([]*models.RefreshSession, error)

	// DeleteExpiredSessions removes sessions whose expiry is before the cutoff
	// Returns number of deleted sessions
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}
