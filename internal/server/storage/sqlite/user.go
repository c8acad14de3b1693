package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/storage"
)

const userColumns = `id, name, email, password_hash, role, verified, must_change_password,
	reset_token_hash, reset_expires_at, otp_hash, otp_expires_at, created_at, updated_at`

// CreateUser creates a new user in the storage
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Verified,
		user.MustChangePassword,
		user.ResetTokenHash,
		nullMillis(user.ResetExpiresAt),
		user.OTPHash,
		nullMillis(user.OTPExpiresAt),
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUserByEmail retrieves user by email
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
}

// GetUserByResetTokenHash retrieves user by password reset digest
func (s *Storage) GetUserByResetTokenHash(ctx context.Context, hash string) (*models.User, error) {
	if hash == "" {
		return nil, storage.ErrUserNotFound
	}
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token_hash = ?`, hash)
}

func (s *Storage) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUser updates user information
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = ?, email = ?, password_hash = ?, role = ?, verified = ?,
			must_change_password = ?, reset_token_hash = ?, reset_expires_at = ?,
			otp_hash = ?, otp_expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Verified,
		user.MustChangePassword,
		user.ResetTokenHash,
		nullMillis(user.ResetExpiresAt),
		user.OTPHash,
		nullMillis(user.OTPExpiresAt),
		toMillis(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// DeleteUser deletes user by ID; refresh sessions go with it via ON DELETE CASCADE
func (s *Storage) DeleteUser(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user                 models.User
		role                 string
		resetExp, otpExp     sql.NullInt64
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Verified,
		&user.MustChangePassword,
		&user.ResetTokenHash,
		&resetExp,
		&user.OTPHash,
		&otpExp,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = rbac.Role(role)
	user.ResetExpiresAt = fromNullMillis(resetExp)
	user.OTPExpiresAt = fromNullMillis(otpExp)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)

	return &user, nil
}
