package storage

import (
	"context"

	"github.com/iudanet/taskhub/internal/models"
)

// UserStorage defines interface for account persistence
type UserStorage interface {
	// CreateUser creates a new user in the storage
	// Returns ErrUserAlreadyExists if email is taken
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail retrieves user by normalized email
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves user by ID
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// GetUserByResetTokenHash retrieves user holding the given reset secret digest
	// Returns ErrUserNotFound if no user holds it
	GetUserByResetTokenHash(ctx context.Context, hash string) (*models.User, error)

	// UpdateUser overwrites mutable user fields
	// Returns ErrUserNotFound if user doesn't exist
	UpdateUser(ctx context.Context, user *models.User) error

	// DeleteUser deletes user by ID together with its refresh sessions
	// Returns ErrUserNotFound if user doesn't exist
	DeleteUser(ctx context.Context, userID string) error
}
