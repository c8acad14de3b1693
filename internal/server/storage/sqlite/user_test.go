package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/storage"
)

func newUser(email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:           uuid.New().String(),
		Name:         "Jane",
		Email:        email,
		PasswordHash: "hash123",
		Role:         rbac.RoleEmployee,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserStorage_CreateUser(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	withReset := newUser("reset@example.com")
	withReset.ResetTokenHash = "digest"
	withReset.ResetExpiresAt = timePtr(time.Now().Add(time.Hour))
	withReset.MustChangePassword = true

	tests := []struct {
		wantError error
		user      *models.User
		name      string
	}{
		{
			name: "create new user successfully",
			user: newUser("first@example.com"),
		},
		{
			name: "create user with reset fields",
			user: withReset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateUser(ctx, tt.user)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			retrieved, err := s.GetUserByID(ctx, tt.user.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.user.ID, retrieved.ID)
			assert.Equal(t, tt.user.Email, retrieved.Email)
			assert.Equal(t, tt.user.Role, retrieved.Role)
			assert.Equal(t, tt.user.PasswordHash, retrieved.PasswordHash)
			assert.Equal(t, tt.user.MustChangePassword, retrieved.MustChangePassword)
			assert.Equal(t, tt.user.ResetTokenHash, retrieved.ResetTokenHash)
			if tt.user.ResetExpiresAt != nil {
				require.NotNil(t, retrieved.ResetExpiresAt)
				assert.WithinDuration(t, *tt.user.ResetExpiresAt, *retrieved.ResetExpiresAt, time.Millisecond)
			} else {
				assert.Nil(t, retrieved.ResetExpiresAt)
			}
		})
	}
}

func TestUserStorage_CreateUser_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.CreateUser(ctx, newUser("dup@example.com")))

	err := s.CreateUser(ctx, newUser("dup@example.com"))
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestUserStorage_GetUserByEmail(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := newUser("lookup@example.com")
	require.NoError(t, s.CreateUser(ctx, user))

	tests := []struct {
		wantError error
		name      string
		email     string
	}{
		{name: "existing user", email: "lookup@example.com"},
		{name: "unknown email", email: "nobody@example.com", wantError: storage.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetUserByEmail(ctx, tt.email)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
		})
	}
}

func TestUserStorage_GetUserByResetTokenHash(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := newUser("reset@example.com")
	user.ResetTokenHash = "abc123"
	require.NoError(t, s.CreateUser(ctx, user))
	require.NoError(t, s.CreateUser(ctx, newUser("other@example.com")))

	got, err := s.GetUserByResetTokenHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.GetUserByResetTokenHash(ctx, "")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.GetUserByResetTokenHash(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestUserStorage_UpdateUser(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := newUser("original@example.com")
	require.NoError(t, s.CreateUser(ctx, user))

	updated := *user
	updated.Name = "Updated"
	updated.Role = rbac.RoleManager
	updated.Verified = true
	updated.PasswordHash = "newhash"

	tests := []struct {
		wantError error
		updates   *models.User
		name      string
	}{
		{
			name:    "update role and password",
			updates: &updated,
		},
		{
			name:      "update non-existent user",
			updates:   newUser("ghost@example.com"),
			wantError: storage.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.UpdateUser(ctx, tt.updates)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			retrieved, err := s.GetUserByID(ctx, tt.updates.ID)
			require.NoError(t, err)
			assert.Equal(t, "Updated", retrieved.Name)
			assert.Equal(t, rbac.RoleManager, retrieved.Role)
			assert.True(t, retrieved.Verified)
			assert.Equal(t, "newhash", retrieved.PasswordHash)
		})
	}
}

func TestUserStorage_DeleteUser_CascadesSessions(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)
	now := time.Now()
	require.NoError(t, s.CreateSession(ctx, &models.RefreshSession{
		ID:         uuid.New().String(),
		UserID:     userID,
		SecretHash: "cascade-hash",
		IssuedAt:   now,
		ExpiresAt:  now.Add(time.Hour),
	}))

	require.NoError(t, s.DeleteUser(ctx, userID))

	_, err := s.GetUserByID(ctx, userID)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.GetSessionByHash(ctx, "cascade-hash")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	err = s.DeleteUser(ctx, userID)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}
