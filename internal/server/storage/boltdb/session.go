package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/server/storage"
)

// CreateSession stores a new refresh session
func (s *Storage) CreateSession(ctx context.Context, session *models.RefreshSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		if sessions.Get([]byte(session.SecretHash)) != nil {
			return fmt.Errorf("refresh session with this hash already exists")
		}

		if err := putSession(sessions, session); err != nil {
			return err
		}

		index, err := tx.Bucket(bucketUserSessions).CreateBucketIfNotExists([]byte(session.UserID))
		if err != nil {
			return fmt.Errorf("failed to create user index: %w", err)
		}

		return index.Put([]byte(session.SecretHash), []byte{})
	})
}

// GetSessionByHash retrieves refresh session by secret digest
func (s *Storage) GetSessionByHash(ctx context.Context, hash string) (*models.RefreshSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session *models.RefreshSession

	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		session, err = getSession(tx.Bucket(bucketSessions), hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// MarkRotated flips an active session to rotated inside one write transaction
func (s *Storage) MarkRotated(
	ctx context.Context,
	hash, userID, replacedBy string,
	graceUntil, now time.Time,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)

		session, err := getSession(sessions, hash)
		if err != nil {
			if errors.Is(err, storage.ErrSessionNotFound) {
				return storage.ErrSessionConflict
			}
			return err
		}

		if session.UserID != userID || !session.Active(now) {
			return storage.ErrSessionConflict
		}

		revokedAt := now
		session.Revoked = true
		session.RevokedAt = &revokedAt
		session.RevokeReason = models.ReasonRotated
		session.ReplacedBy = replacedBy
		if graceUntil.Before(session.ExpiresAt) {
			session.ExpiresAt = graceUntil
		}

		return putSession(sessions, session)
	})
}

// RevokeSession revokes a single unrevoked session
func (s *Storage) RevokeSession(
	ctx context.Context,
	hash, userID string,
	reason models.RevokeReason,
	now time.Time,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)

		session, err := getSession(sessions, hash)
		if err != nil {
			return err
		}

		if session.UserID != userID || session.Revoked {
			return storage.ErrSessionNotFound
		}

		revoke(session, reason, now)
		return putSession(sessions, session)
	})
}

// RevokeUserSessions revokes all unrevoked sessions of a user
func (s *Storage) RevokeUserSessions(
	ctx context.Context,
	userID string,
	reason models.RevokeReason,
	now time.Time,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var revoked int

	err := s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketUserSessions).Bucket([]byte(userID))
		if index == nil {
			return nil
		}

		sessions := tx.Bucket(bucketSessions)

		return index.ForEach(func(k, _ []byte) error {
			session, err := getSession(sessions, string(k))
			if errors.Is(err, storage.ErrSessionNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if session.Revoked {
				return nil
			}

			revoke(session, reason, now)
			revoked++
			return putSession(sessions, session)
		})
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

// ListUserSessions retrieves all refresh sessions for a user, newest first
func (s *Storage) ListUserSessions(ctx context.Context, userID string) ([]*models.RefreshSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*models.RefreshSession

	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketUserSessions).Bucket([]byte(userID))
		if index == nil {
			return nil
		}

		sessions := tx.Bucket(bucketSessions)

		return index.ForEach(func(k, _ []byte) error {
			session, err := getSession(sessions, string(k))
			if errors.Is(err, storage.ErrSessionNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			result = append(result, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})

	return result, nil
}

// DeleteExpiredSessions removes all sessions that expired before the cutoff
func (s *Storage) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var deleted int

	err := s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		users := tx.Bucket(bucketUserSessions)

		// collect first: deleting while iterating a cursor skips keys
		var expired []*models.RefreshSession
		err := sessions.ForEach(func(_, v []byte) error {
			var session models.RefreshSession
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("failed to unmarshal session: %w", err)
			}
			if session.ExpiresAt.Before(before) {
				expired = append(expired, &session)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, session := range expired {
			if err := sessions.Delete([]byte(session.SecretHash)); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			if index := users.Bucket([]byte(session.UserID)); index != nil {
				if err := index.Delete([]byte(session.SecretHash)); err != nil {
					return fmt.Errorf("failed to delete session index: %w", err)
				}
			}
			deleted++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func getSession(bucket *bbolt.Bucket, hash string) (*models.RefreshSession, error) {
	data := bucket.Get([]byte(hash))
	if data == nil {
		return nil, storage.ErrSessionNotFound
	}

	session := &models.RefreshSession{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return session, nil
}

func putSession(bucket *bbolt.Bucket, session *models.RefreshSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := bucket.Put([]byte(session.SecretHash), data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func revoke(session *models.RefreshSession, reason models.RevokeReason, now time.Time) {
	revokedAt := now
	session.Revoked = true
	session.RevokedAt = &revokedAt
	session.RevokeReason = reason
}
