package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/rbac"
	"github.com/iudanet/taskhub/internal/server/authctx"
	"github.com/iudanet/taskhub/internal/server/jwt"
	"github.com/iudanet/taskhub/internal/server/mail"
	"github.com/iudanet/taskhub/internal/server/session"
	"github.com/iudanet/taskhub/internal/server/storage/sqlite"
)

var otpPattern = regexp.MustCompile(`code is (\d{6})`)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *Service
	store  *sqlite.Storage
	tokens *jwt.Service
	mailer *mail.MailerMock
	clock  *fakeClock
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: time.Now()}

	tokens, err := jwt.NewService("test-secret", 15*time.Minute, jwt.WithClock(clock.Now))
	require.NoError(t, err)

	sessions := session.NewService(store, logger,
		session.WithClock(clock.Now),
		session.WithGrace(10*time.Second),
	)

	mailer := &mail.MailerMock{
		SendFunc: func(ctx context.Context, msg mail.Message) error {
			return nil
		},
	}

	svc := NewService(store, sessions, tokens, mailer, logger,
		WithClock(clock.Now),
		WithClientURL("https://app.example.com/"),
	)

	return &fixture{svc: svc, store: store, tokens: tokens, mailer: mailer, clock: clock}
}

func (f *fixture) lastMail(t *testing.T) mail.Message {
	t.Helper()
	calls := f.mailer.SendCalls()
	require.NotEmpty(t, calls)
	return calls[len(calls)-1].Msg
}

func (f *fixture) lastOTP(t *testing.T) string {
	t.Helper()
	m := otpPattern.FindStringSubmatch(f.lastMail(t).Body)
	require.Len(t, m, 2)
	return m[1]
}

// registerVerified creates a verified employee and returns its id
func (f *fixture) registerVerified(t *testing.T, email, password string) string {
	t.Helper()
	ctx := context.Background()

	profile, err := f.svc.Register(ctx, "Test User", email, password)
	require.NoError(t, err)
	require.NoError(t, f.svc.Verify(ctx, email, f.lastOTP(t)))
	return profile.ID
}

func (f *fixture) setRole(t *testing.T, userID string, role rbac.Role) {
	t.Helper()
	ctx := context.Background()
	user, err := f.store.GetUserByID(ctx, userID)
	require.NoError(t, err)
	user.Role = role
	require.NoError(t, f.store.UpdateUser(ctx, user))
}

func TestRegisterVerifyLogin(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	profile, err := f.svc.Register(ctx, "Alice", "Alice@Example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, rbac.RoleEmployee, profile.Role)

	msg := f.lastMail(t)
	assert.Equal(t, "alice@example.com", msg.To)

	_, err = f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	assert.ErrorIs(t, err, ErrNotVerified)

	require.NoError(t, f.svc.Verify(ctx, "alice@example.com", f.lastOTP(t)))

	pair, err := f.svc.Login(ctx, "ALICE@example.com", "secret123", session.Metadata{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.False(t, pair.MustChangePassword)
	assert.Equal(t, profile.ID, pair.User.ID)
	assert.True(t, pair.RefreshExpiresAt.After(f.clock.Now()))

	claims, err := f.tokens.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, claims.Subject)
	assert.Equal(t, "employee", claims.Role)
}

func TestRegister_Errors(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{name: "short name", userName: "A", email: "a@example.com", password: "secret123"},
		{name: "bad email", userName: "Alice", email: "not-an-email", password: "secret123"},
		{name: "short password", userName: "Alice", email: "a@example.com", password: "12345"},
		{name: "password over bcrypt limit", userName: "Alice", email: "a@example.com", password: strings.Repeat("a", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.userName, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	t.Run("verified email taken", func(t *testing.T) {
		f.registerVerified(t, "taken@example.com", "secret123")
		_, err := f.svc.Register(ctx, "Other", "TAKEN@example.com", "secret456")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("unverified email re-registers", func(t *testing.T) {
		first, err := f.svc.Register(ctx, "Bob", "bob@example.com", "secret123")
		require.NoError(t, err)
		second, err := f.svc.Register(ctx, "Bobby", "bob@example.com", "secret456")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		require.NoError(t, f.svc.Verify(ctx, "bob@example.com", f.lastOTP(t)))
		_, err = f.svc.Login(ctx, "bob@example.com", "secret456", session.Metadata{})
		assert.NoError(t, err)
	})
}

func TestRegister_MailFailureDoesNotFail(t *testing.T) {
	f := setupFixture(t)
	f.mailer.SendFunc = func(ctx context.Context, msg mail.Message) error {
		return errors.New("smtp down")
	}

	_, err := f.svc.Register(context.Background(), "Alice", "alice@example.com", "secret123")
	assert.NoError(t, err)
}

func TestVerify(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret123")
	require.NoError(t, err)
	otp := f.lastOTP(t)

	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}

	assert.ErrorIs(t, f.svc.Verify(ctx, "alice@example.com", wrong), ErrInvalidOTP)
	assert.ErrorIs(t, f.svc.Verify(ctx, "alice@example.com", "abc"), ErrInvalidOTP)
	assert.ErrorIs(t, f.svc.Verify(ctx, "nobody@example.com", otp), ErrInvalidOTP)

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(DefaultOTPTTL)
		assert.ErrorIs(t, f.svc.Verify(ctx, "alice@example.com", otp), ErrInvalidOTP)
	})

	t.Run("consumed", func(t *testing.T) {
		_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "secret123")
		require.NoError(t, err)
		fresh := f.lastOTP(t)
		require.NoError(t, f.svc.Verify(ctx, "alice@example.com", fresh))
		assert.ErrorIs(t, f.svc.Verify(ctx, "alice@example.com", fresh), ErrInvalidOTP)
	})
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com", "secret123")

	_, err := f.svc.Login(ctx, "alice@example.com", "wrong-password", session.Metadata{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", "secret123", session.Metadata{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	userID := f.registerVerified(t, "alice@example.com", "secret123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)

	t.Run("carries current role", func(t *testing.T) {
		f.setRole(t, userID, rbac.RoleManager)

		next, err := f.svc.Refresh(ctx, pair.RefreshToken, session.Metadata{})
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

		claims, err := f.tokens.Verify(next.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "manager", claims.Role)

		pair = next
	})

	t.Run("replay after grace is reuse", func(t *testing.T) {
		old := pair.RefreshToken
		next, err := f.svc.Refresh(ctx, old, session.Metadata{})
		require.NoError(t, err)

		f.clock.Advance(time.Minute)

		_, err = f.svc.Refresh(ctx, old, session.Metadata{})
		assert.ErrorIs(t, err, session.ErrSuspectedReuse)

		_, err = f.svc.Refresh(ctx, next.RefreshToken, session.Metadata{})
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.svc.Refresh(ctx, "not-a-token", session.Metadata{})
		assert.ErrorIs(t, err, session.ErrInvalidRefreshToken)

		_, err = f.svc.Refresh(ctx, "", session.Metadata{})
		assert.ErrorIs(t, err, session.ErrInvalidRefreshToken)
	})
}

func TestRefresh_DeletedUser(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	userID := f.registerVerified(t, "alice@example.com", "secret123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)

	// drop the account without touching the session rows
	_, err = f.store.DB().ExecContext(ctx, `PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = f.store.DB().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken, session.Metadata{})
	assert.ErrorIs(t, err, session.ErrInvalidRefreshToken)

	sessions, err := f.store.ListUserSessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Revoked)
	assert.Equal(t, models.ReasonLogout, sessions[0].RevokeReason)
}

func TestLogout(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com", "secret123")

	first, err := f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, first.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, first.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, ""))

	_, err = f.svc.Refresh(ctx, first.RefreshToken, session.Metadata{})
	assert.ErrorIs(t, err, session.ErrInvalidRefreshToken)
	assert.NotErrorIs(t, err, session.ErrSuspectedReuse)

	_, err = f.svc.Refresh(ctx, second.RefreshToken, session.Metadata{})
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	userID := f.registerVerified(t, "alice@example.com", "secret123")

	pairA, err := f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)
	pairB, err := f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "wrong", "newsecret1"), ErrWrongPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "secret123", "123"), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "secret123", strings.Repeat("я", 50)), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "missing", "secret123", "newsecret1"), ErrUserNotFound)

	require.NoError(t, f.svc.ChangePassword(ctx, userID, "secret123", "newsecret1"))

	sessions, err := f.svc.Sessions(ctx, userID)
	require.NoError(t, err)
	for _, s := range sessions {
		assert.True(t, s.Revoked)
		assert.Equal(t, models.ReasonPasswordChange, s.RevokeReason)
	}

	_, err = f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	fresh, err := f.svc.Login(ctx, "alice@example.com", "newsecret1", session.Metadata{})
	require.NoError(t, err)

	// stale cookies of other devices are refused without ending the new session
	for _, stale := range []string{pairA.RefreshToken, pairB.RefreshToken} {
		_, err = f.svc.Refresh(ctx, stale, session.Metadata{})
		assert.ErrorIs(t, err, session.ErrInvalidRefreshToken)
		assert.NotErrorIs(t, err, session.ErrSuspectedReuse)
	}
	_, err = f.svc.Refresh(ctx, fresh.RefreshToken, session.Metadata{})
	assert.NoError(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	userID := f.registerVerified(t, "alice@example.com", "secret123")

	pair, err := f.svc.Login(ctx, "alice@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)

	before := len(f.mailer.SendCalls())
	require.NoError(t, f.svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.Len(t, f.mailer.SendCalls(), before)

	require.NoError(t, f.svc.ForgotPassword(ctx, "Alice@example.com"))
	msg := f.lastMail(t)
	assert.Equal(t, "alice@example.com", msg.To)

	idx := strings.Index(msg.Body, "https://app.example.com/reset-password?token=")
	require.GreaterOrEqual(t, idx, 0)
	link := strings.Fields(msg.Body[idx:])[0]
	u, err := url.Parse(strings.TrimSuffix(link, "."))
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "", "newsecret1"), ErrInvalidResetToken)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "deadbeef", "newsecret1"), ErrInvalidResetToken)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "123"), ErrInvalidInput)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "newsecret1"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "newsecret2"), ErrInvalidResetToken)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken, session.Metadata{})
	assert.ErrorIs(t, err, session.ErrInvalidRefreshToken)
	assert.NotErrorIs(t, err, session.ErrSuspectedReuse)

	sessions, err := f.svc.Sessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	_, err = f.svc.Login(ctx, "alice@example.com", "newsecret1", session.Metadata{})
	assert.NoError(t, err)
}

func TestResetPassword_Expired(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com", "secret123")

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com"))
	u, err := url.Parse(strings.TrimSuffix(strings.Fields(f.lastMail(t).Body[strings.Index(f.lastMail(t).Body, "https://"):])[0], "."))
	require.NoError(t, err)

	f.clock.Advance(DefaultResetTTL + time.Second)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, u.Query().Get("token"), "newsecret1"), ErrInvalidResetToken)
}

func TestChangeRole(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	targetID := f.registerVerified(t, "target@example.com", "secret123")

	tests := []struct {
		name      string
		requester rbac.Role
		current   rbac.Role
		next      rbac.Role
		wantErr   error
	}{
		{name: "admin promotes employee to manager", requester: rbac.RoleAdmin, current: rbac.RoleEmployee, next: rbac.RoleManager},
		{name: "superadmin promotes manager to admin", requester: rbac.RoleSuperAdmin, current: rbac.RoleManager, next: rbac.RoleAdmin},
		{name: "superadmin demotes admin", requester: rbac.RoleSuperAdmin, current: rbac.RoleAdmin, next: rbac.RoleEmployee},
		{name: "manager cannot grant manager", requester: rbac.RoleManager, current: rbac.RoleEmployee, next: rbac.RoleManager, wantErr: ErrInsufficientRole},
		{name: "admin cannot touch admin", requester: rbac.RoleAdmin, current: rbac.RoleAdmin, next: rbac.RoleEmployee, wantErr: ErrInsufficientRole},
		{name: "nobody grants superadmin", requester: rbac.RoleSuperAdmin, current: rbac.RoleEmployee, next: rbac.RoleSuperAdmin, wantErr: ErrInsufficientRole},
		{name: "unknown role", requester: rbac.RoleSuperAdmin, current: rbac.RoleEmployee, next: rbac.Role("owner"), wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.setRole(t, targetID, tt.current)
			requester := authctx.Identity{UserID: "requester", Role: tt.requester}

			profile, err := f.svc.ChangeRole(ctx, requester, targetID, tt.next)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				user, err := f.store.GetUserByID(ctx, targetID)
				require.NoError(t, err)
				assert.Equal(t, tt.current, user.Role)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.next, profile.Role)
			assert.Contains(t, f.lastMail(t).Subject, tt.next.String())
		})
	}

	_, err := f.svc.ChangeRole(ctx, authctx.Identity{UserID: "r", Role: rbac.RoleSuperAdmin}, "missing", rbac.RoleManager)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateUser(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	admin := authctx.Identity{UserID: "admin-id", Role: rbac.RoleAdmin}

	profile, err := f.svc.CreateUser(ctx, admin, NewUser{Name: "Carol", Email: "Carol@example.com", Role: rbac.RoleManager})
	require.NoError(t, err)
	assert.True(t, profile.MustChangePassword)
	assert.Equal(t, rbac.RoleManager, profile.Role)

	msg := f.lastMail(t)
	assert.Equal(t, "carol@example.com", msg.To)
	m := regexp.MustCompile(`Temporary password: (\S+)`).FindStringSubmatch(msg.Body)
	require.Len(t, m, 2)
	assert.True(t, strings.HasPrefix(m[1], "Temp-"))

	pair, err := f.svc.Login(ctx, "carol@example.com", m[1], session.Metadata{})
	require.NoError(t, err)
	assert.True(t, pair.MustChangePassword)

	require.NoError(t, f.svc.ChangePassword(ctx, profile.ID, m[1], "chosen-password"))
	got, err := f.svc.Profile(ctx, profile.ID)
	require.NoError(t, err)
	assert.False(t, got.MustChangePassword)

	t.Run("provided password", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, admin, NewUser{Name: "Dan", Email: "dan@example.com", Password: "given-pass"})
		require.NoError(t, err)
		pair, err := f.svc.Login(ctx, "dan@example.com", "given-pass", session.Metadata{})
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleEmployee, pair.User.Role)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, admin, NewUser{Name: "Carol", Email: "carol@example.com"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("cannot grant own rank", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, admin, NewUser{Name: "Eve", Email: "eve@example.com", Role: rbac.RoleAdmin})
		assert.ErrorIs(t, err, ErrInsufficientRole)
	})
}

func TestDeleteUser(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	targetID := f.registerVerified(t, "target@example.com", "secret123")
	pair, err := f.svc.Login(ctx, "target@example.com", "secret123", session.Metadata{})
	require.NoError(t, err)

	admin := authctx.Identity{UserID: "admin-id", Role: rbac.RoleAdmin}

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin, "admin-id"), ErrInvalidInput)
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, authctx.Identity{UserID: "m", Role: rbac.RoleEmployee}, targetID), ErrInsufficientRole)

	require.NoError(t, f.svc.DeleteUser(ctx, admin, targetID))
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin, targetID), ErrUserNotFound)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken, session.Metadata{})
	assert.ErrorIs(t, err, session.ErrInvalidRefreshToken)
}

func TestEnsureSuperAdmin(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	created, err := f.svc.EnsureSuperAdmin(ctx, "root@example.com", "", "root-pass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.EnsureSuperAdmin(ctx, "root@example.com", "", "root-pass")
	require.NoError(t, err)
	assert.False(t, created)

	pair, err := f.svc.Login(ctx, "root@example.com", "root-pass", session.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSuperAdmin, pair.User.Role)
	assert.Equal(t, "Super Admin", pair.User.Name)

	t.Run("promotes existing account", func(t *testing.T) {
		_, err := f.svc.Register(ctx, "Pending", "pending@example.com", "secret123")
		require.NoError(t, err)

		created, err := f.svc.EnsureSuperAdmin(ctx, "pending@example.com", "", "ignored-pass")
		require.NoError(t, err)
		assert.False(t, created)

		pair, err := f.svc.Login(ctx, "pending@example.com", "secret123", session.Metadata{})
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleSuperAdmin, pair.User.Role)
	})

	_, err = f.svc.EnsureSuperAdmin(ctx, "bad", "", "root-pass")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
