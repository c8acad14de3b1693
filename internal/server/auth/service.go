package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/taskhub/internal/crypto"
	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/authctx"
	"github.com/iudanet/taskhub/internal/server/jwt"
	"github.com/iudanet/taskhub/internal/server/mail"
	"github.com/iudanet/taskhub/internal/server/session"
	"github.com/iudanet/taskhub/internal/server/storage"
	"github.com/iudanet/taskhub/internal/validation"
)

const (
	DefaultOTPTTL   = 10 * time.Minute
	DefaultResetTTL = time.Hour
)

// TokenPair is the result of a login or refresh.
// RefreshToken is raw and must only travel in the refresh cookie.
type TokenPair struct {
	RefreshExpiresAt   time.Time
	AccessToken        string
	RefreshToken       string
	User               models.Profile
	ExpiresIn          int64
	MustChangePassword bool
}

// NewUser describes an account created by an administrator
type NewUser struct {
	Name     string
	Email    string
	Password string // empty generates a temporary password
	Role     rbac.Role
}

// Service orchestrates account and session flows
type Service struct {
	users     storage.UserStorage
	sessions  *session.Service
	tokens    *jwt.Service
	mailer    mail.Mailer
	logger    *slog.Logger
	now       func() time.Time
	clientURL string
	otpTTL    time.Duration
	resetTTL  time.Duration
}

// Option configures Service
type Option func(*Service)

// WithClientURL sets the base URL used in mailed links
func WithClientURL(clientURL string) Option {
	return func(s *Service) {
		s.clientURL = strings.TrimRight(clientURL, "/")
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

// WithOTPTTL sets the lifetime of verification codes
func WithOTPTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.otpTTL = ttl
		}
	}
}

// WithResetTTL sets the lifetime of password reset tokens
func WithResetTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// NewService creates the auth service
func NewService(
	users storage.UserStorage,
	sessions *session.Service,
	tokens *jwt.Service,
	mailer mail.Mailer,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		mailer:    mailer,
		logger:    logger,
		now:       time.Now,
		clientURL: "http://localhost:3000",
		otpTTL:    DefaultOTPTTL,
		resetTTL:  DefaultResetTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an unverified employee account and mails a verification code.
// Re-registering an unverified email replaces its password and code.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.Profile, error) {
	email = validation.NormalizeEmail(email)
	if err := firstInvalid(
		validation.ValidateName(name),
		validation.ValidateEmail(email),
		validation.ValidatePassword(password),
	); err != nil {
		return nil, err
	}

	otp, err := crypto.GenerateOTP()
	if err != nil {
		return nil, err
	}
	passwordHash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	otpExpires := now.Add(s.otpTTL)

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil && user.Verified:
		return nil, ErrEmailTaken
	case err == nil:
		user.Name = strings.TrimSpace(name)
		user.PasswordHash = passwordHash
		user.OTPHash = crypto.HashSecret(otp)
		user.OTPExpiresAt = &otpExpires
		user.UpdatedAt = now
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
	case errors.Is(err, storage.ErrUserNotFound):
		user = &models.User{
			ID:           uuid.NewString(),
			Name:         strings.TrimSpace(name),
			Email:        email,
			PasswordHash: passwordHash,
			Role:         rbac.RoleEmployee,
			OTPHash:      crypto.HashSecret(otp),
			OTPExpiresAt: &otpExpires,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			if errors.Is(err, storage.ErrUserAlreadyExists) {
				return nil, ErrEmailTaken
			}
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	s.send(ctx, mail.OTPMessage(user.Email, otp))
	s.logger.InfoContext(ctx, "User registered", slog.String("user_id", user.ID))

	profile := user.Profile()
	return &profile, nil
}

// Verify confirms the account email with the mailed code
func (s *Service) Verify(ctx context.Context, email, otp string) error {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateOTP(otp); err != nil {
		return ErrInvalidOTP
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrUserNotFound) {
		return ErrInvalidOTP
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	now := s.now()
	if user.OTPExpiresAt == nil || !now.Before(*user.OTPExpiresAt) || !crypto.VerifySecret(otp, user.OTPHash) {
		return ErrInvalidOTP
	}

	user.Verified = true
	user.OTPHash = ""
	user.OTPExpiresAt = nil
	user.UpdatedAt = now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.InfoContext(ctx, "Email verified", slog.String("user_id", user.ID))
	return nil
}

// Login checks credentials and opens a new refresh session
func (s *Service) Login(ctx context.Context, email, password string, meta session.Metadata) (*TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := crypto.VerifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			s.logger.WarnContext(ctx, "Login failed", slog.String("user_id", user.ID))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Verified {
		return nil, ErrNotVerified
	}

	raw, sess, err := s.sessions.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "User logged in", slog.String("user_id", user.ID))
	return s.pair(user, raw, sess)
}

// Refresh rotates a refresh secret and mints an access token for the owner's current role.
// Errors are session.ErrInvalidRefreshToken or session.ErrSuspectedReuse.
func (s *Service) Refresh(ctx context.Context, raw string, meta session.Metadata) (*TokenPair, error) {
	current, err := s.sessions.Lookup(ctx, raw)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, current.UserID)
	if errors.Is(err, storage.ErrUserNotFound) {
		if err := s.sessions.RevokeOne(ctx, raw, current.UserID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to revoke orphaned session", slog.Any("error", err))
		}
		s.logger.WarnContext(ctx, "Refresh for deleted user", slog.String("user_id", current.UserID))
		return nil, session.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, errors.Join(session.ErrInvalidRefreshToken, fmt.Errorf("failed to get user: %w", err))
	}

	rotation, err := s.sessions.Rotate(ctx, raw, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return s.pair(user, rotation.Raw, rotation.Session)
}

// Logout revokes the presented refresh session only
func (s *Service) Logout(ctx context.Context, raw string) error {
	return s.sessions.RevokeOne(ctx, raw, "")
}

// ChangePassword replaces the password and ends every session of the user
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validation.ValidateNewPassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := crypto.VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			return ErrWrongPassword
		}
		return err
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	if _, err := s.sessions.RevokeAll(ctx, user.ID, models.ReasonPasswordChange); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Password changed", slog.String("user_id", user.ID))
	return nil
}

// ForgotPassword mails a reset link. Unknown emails are ignored silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	token, err := crypto.GenerateResetToken()
	if err != nil {
		return err
	}

	now := s.now()
	expires := now.Add(s.resetTTL)
	user.ResetTokenHash = crypto.HashSecret(token)
	user.ResetExpiresAt = &expires
	user.UpdatedAt = now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	resetURL := s.clientURL + "/reset-password?token=" + url.QueryEscape(token)
	s.send(ctx, mail.ResetMessage(user.Email, resetURL))
	s.logger.InfoContext(ctx, "Password reset requested", slog.String("user_id", user.ID))

	return nil
}

// ResetPassword sets a new password using a mailed reset token and ends every session
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	user, err := s.users.GetUserByResetTokenHash(ctx, crypto.HashSecret(token))
	if errors.Is(err, storage.ErrUserNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if user.ResetExpiresAt == nil || !s.now().Before(*user.ResetExpiresAt) {
		return ErrInvalidResetToken
	}

	user.ResetTokenHash = ""
	user.ResetExpiresAt = nil
	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	if _, err := s.sessions.RevokeAll(ctx, user.ID, models.ReasonPasswordReset); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Password reset", slog.String("user_id", user.ID))
	return nil
}

// ChangeRole moves the target to a new role; the requester must outrank both roles
func (s *Service) ChangeRole(ctx context.Context, requester authctx.Identity, targetID string, next rbac.Role) (*models.Profile, error) {
	if rbac.Rank(next) < 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, rbac.ErrUnknownRole)
	}

	target, err := s.getUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if !rbac.CanRetarget(requester.Role, target.Role, next) {
		s.logger.WarnContext(ctx, "Role change refused",
			slog.String("requester_id", requester.UserID),
			slog.String("target_id", target.ID),
			slog.String("from", target.Role.String()),
			slog.String("to", next.String()),
		)
		return nil, ErrInsufficientRole
	}

	target.Role = next
	target.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.send(ctx, mail.RoleChangeMessage(target.Email, next.String(), s.clientURL))
	s.logger.InfoContext(ctx, "Role changed",
		slog.String("requester_id", requester.UserID),
		slog.String("target_id", target.ID),
		slog.String("role", next.String()),
	)

	profile := target.Profile()
	return &profile, nil
}

// CreateUser creates a verified account that must change its password on first login.
// The requester must outrank the role being granted.
func (s *Service) CreateUser(ctx context.Context, requester authctx.Identity, in NewUser) (*models.Profile, error) {
	email := validation.NormalizeEmail(in.Email)
	role := in.Role
	if role == "" {
		role = rbac.RoleEmployee
	}

	password := strings.TrimSpace(in.Password)
	var passwordErr error
	if password != "" {
		passwordErr = validation.ValidateNewPassword(password)
	}
	if err := firstInvalid(validation.ValidateName(in.Name), validation.ValidateEmail(email), passwordErr); err != nil {
		return nil, err
	}
	if rbac.Rank(role) < 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, rbac.ErrUnknownRole)
	}
	if rbac.Rank(requester.Role) <= rbac.Rank(role) {
		return nil, ErrInsufficientRole
	}

	if password == "" {
		suffix, err := crypto.GenerateResetToken()
		if err != nil {
			return nil, err
		}
		password = "Temp-" + suffix[:8]
	}

	passwordHash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(in.Name),
		Email:              email,
		PasswordHash:       passwordHash,
		Role:               role,
		Verified:           true,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.send(ctx, mail.WelcomeMessage(user.Email, role.String(), password, s.clientURL))
	s.logger.InfoContext(ctx, "User created",
		slog.String("requester_id", requester.UserID),
		slog.String("user_id", user.ID),
		slog.String("role", role.String()),
	)

	profile := user.Profile()
	return &profile, nil
}

// DeleteUser removes an account and its sessions.
// Self-deletion and deleting a superadmin are refused.
func (s *Service) DeleteUser(ctx context.Context, requester authctx.Identity, targetID string) error {
	if requester.UserID == targetID {
		return fmt.Errorf("%w: you cannot delete your own account", ErrInvalidInput)
	}

	target, err := s.getUser(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == rbac.RoleSuperAdmin || rbac.Rank(requester.Role) <= rbac.Rank(target.Role) {
		return ErrInsufficientRole
	}

	// the session store may live outside the user database
	if _, err := s.sessions.RevokeAll(ctx, target.ID, models.ReasonAdmin); err != nil {
		return err
	}

	if err := s.users.DeleteUser(ctx, target.ID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.InfoContext(ctx, "User deleted",
		slog.String("requester_id", requester.UserID),
		slog.String("user_id", target.ID),
	)
	return nil
}

// Profile returns the public account fields
func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// Sessions returns the refresh session history of the user
func (s *Service) Sessions(ctx context.Context, userID string) ([]*models.RefreshSession, error) {
	return s.sessions.List(ctx, userID)
}

// RevokeAllSessions ends every session of the user
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	return s.sessions.RevokeAll(ctx, userID, models.ReasonAdmin)
}

// EnsureSuperAdmin creates the superadmin account or promotes an existing one.
// created reports whether a new account was stored.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, name, password string) (bool, error) {
	email = validation.NormalizeEmail(email)
	if name == "" {
		name = "Super Admin"
	}
	if err := firstInvalid(validation.ValidateEmail(email), validation.ValidatePassword(password)); err != nil {
		return false, err
	}

	now := s.now()
	user, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		if user.Role == rbac.RoleSuperAdmin && user.Verified {
			s.logger.InfoContext(ctx, "Super admin already present")
			return false, nil
		}
		user.Role = rbac.RoleSuperAdmin
		user.Verified = true
		user.UpdatedAt = now
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return false, fmt.Errorf("failed to promote user: %w", err)
		}
		s.logger.InfoContext(ctx, "Existing user promoted to super admin", slog.String("user_id", user.ID))
		return false, nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return false, fmt.Errorf("failed to get user: %w", err)
	}

	passwordHash, err := crypto.HashPassword(password)
	if err != nil {
		return false, err
	}

	user = &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         rbac.RoleSuperAdmin,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return false, fmt.Errorf("failed to create super admin: %w", err)
	}

	s.logger.InfoContext(ctx, "Super admin created", slog.String("user_id", user.ID))
	return true, nil
}

func (s *Service) pair(user *models.User, raw string, sess *models.RefreshSession) (*TokenPair, error) {
	access, expiresIn, err := s.tokens.Issue(authctx.Identity{
		UserID: user.ID,
		Role:   user.Role,
		Name:   user.Name,
		Email:  user.Email,
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:        access,
		ExpiresIn:          expiresIn,
		RefreshToken:       raw,
		RefreshExpiresAt:   sess.ExpiresAt,
		User:               user.Profile(),
		MustChangePassword: user.MustChangePassword,
	}, nil
}

func (s *Service) getUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.MustChangePassword = false
	user.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// send delivers a notification; delivery failures never fail the calling flow
func (s *Service) send(ctx context.Context, msg mail.Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send mail",
			slog.String("subject", msg.Subject),
			slog.Any("error", err),
		)
	}
}

func firstInvalid(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return nil
}
