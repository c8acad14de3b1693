package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/server/storage"
)

const sessionColumns = `id, user_id, secret_hash, issued_at, expires_at, revoked, revoked_at,
	revoke_reason, replaced_by, user_agent, ip`

// CreateSession stores a new refresh session
func (s *Storage) CreateSession(ctx context.Context, session *models.RefreshSession) error {
	query := `INSERT INTO refresh_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.SecretHash,
		toMillis(session.IssuedAt),
		toMillis(session.ExpiresAt),
		session.Revoked,
		nullMillis(session.RevokedAt),
		string(session.RevokeReason),
		session.ReplacedBy,
		session.UserAgent,
		session.IP,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh session: %w", err)
	}

	return nil
}

// GetSessionByHash retrieves refresh session by secret digest
func (s *Storage) GetSessionByHash(ctx context.Context, hash string) (*models.RefreshSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM refresh_sessions WHERE secret_hash = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get refresh session: %w", err)
	}

	return session, nil
}

// MarkRotated flips an active session to rotated in a single conditional UPDATE.
// Zero affected rows means a concurrent caller got there first.
func (s *Storage) MarkRotated(
	ctx context.Context,
	hash, userID, replacedBy string,
	graceUntil, now time.Time,
) error {
	query := `
		UPDATE refresh_sessions
		SET revoked = 1, revoked_at = ?, revoke_reason = ?, replaced_by = ?,
			expires_at = MIN(expires_at, ?)
		WHERE secret_hash = ? AND user_id = ? AND revoked = 0 AND expires_at > ?
	`

	nowMs := toMillis(now)
	result, err := s.db.ExecContext(ctx, query,
		nowMs,
		string(models.ReasonRotated),
		replacedBy,
		toMillis(graceUntil),
		hash,
		userID,
		nowMs,
	)
	if err != nil {
		return fmt.Errorf("failed to rotate refresh session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrSessionConflict
	}

	return nil
}

// RevokeSession revokes a single unrevoked session
func (s *Storage) RevokeSession(
	ctx context.Context,
	hash, userID string,
	reason models.RevokeReason,
	now time.Time,
) error {
	query := `
		UPDATE refresh_sessions
		SET revoked = 1, revoked_at = ?, revoke_reason = ?
		WHERE secret_hash = ? AND user_id = ? AND revoked = 0
	`

	result, err := s.db.ExecContext(ctx, query, toMillis(now), string(reason), hash, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrSessionNotFound
	}

	return nil
}

// RevokeUserSessions revokes all unrevoked sessions of a user
func (s *Storage) RevokeUserSessions(
	ctx context.Context,
	userID string,
	reason models.RevokeReason,
	now time.Time,
) (int, error) {
	query := `
		UPDATE refresh_sessions
		SET revoked = 1, revoked_at = ?, revoke_reason = ?
		WHERE user_id = ? AND revoked = 0
	`

	result, err := s.db.ExecContext(ctx, query, toMillis(now), string(reason), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// ListUserSessions retrieves all refresh sessions for a user, newest first
func (s *Storage) ListUserSessions(ctx context.Context, userID string) ([]*models.RefreshSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM refresh_sessions
		WHERE user_id = ?
		ORDER BY issued_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sessions []*models.RefreshSession

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return sessions, nil
}

// DeleteExpiredSessions removes all sessions that expired before the cutoff
func (s *Storage) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.RefreshSession, error) {
	var (
		session             models.RefreshSession
		issuedAt, expiresAt int64
		revokedAt           sql.NullInt64
		reason              string
	)

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.SecretHash,
		&issuedAt,
		&expiresAt,
		&session.Revoked,
		&revokedAt,
		&reason,
		&session.ReplacedBy,
		&session.UserAgent,
		&session.IP,
	)
	if err != nil {
		return nil, err
	}

	session.IssuedAt = fromMillis(issuedAt)
	session.ExpiresAt = fromMillis(expiresAt)
	session.RevokedAt = fromNullMillis(revokedAt)
	session.RevokeReason = models.RevokeReason(reason)

	return &session, nil
}
