// Package admin реализует команды операторской утилиты taskhub-admin
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/taskhub/internal/models"
	"github.com/iudanet/taskhub/internal/server/storage"
	"github.com/iudanet/taskhub/internal/validation"
)

// ErrUnknownCommand is returned by Run for unsupported commands
var ErrUnknownCommand = errors.New("unknown command")

// Seeder creates or promotes the superadmin account
type Seeder interface {
	EnsureSuperAdmin(ctx context.Context, email, name, password string) (bool, error)
}

// Sessions is the part of the rotation service the CLI drives
type Sessions interface {
	List(ctx context.Context, userID string) ([]*models.RefreshSession, error)
	RevokeAll(ctx context.Context, userID string, reason models.RevokeReason) (int, error)
	Cleanup(ctx context.Context) (int, error)
}

// Users resolves accounts by email
type Users interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Cli dispatches operator commands
type Cli struct {
	io       IO
	seeder   Seeder
	sessions Sessions
	users    Users
}

func New(io IO, seeder Seeder, sessions Sessions, users Users) *Cli {
	return &Cli{io: io, seeder: seeder, sessions: sessions, users: users}
}

// Run выполняет команду с аргументами
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "seed":
		return c.runSeed(ctx, args)
	case "sessions":
		return c.runSessions(ctx, args)
	case "revoke-all":
		return c.runRevokeAll(ctx, args)
	case "cleanup":
		return c.runCleanup(ctx)
	case "help":
		c.PrintUsage()
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// PrintUsage prints the command list
func (c *Cli) PrintUsage() {
	c.io.Println("Usage: taskhub-admin [flags] <command> [args]")
	c.io.Println("")
	c.io.Println("Commands:")
	c.io.Println("  seed [email] [name]   create or promote the superadmin")
	c.io.Println("  sessions <email>      list refresh sessions of a user")
	c.io.Println("  revoke-all <email>    revoke every refresh session of a user")
	c.io.Println("  cleanup               delete expired refresh sessions")
	c.io.Println("")
	c.io.Println("Flags:")
	c.io.Println("  -db <path>            SQLite database (default taskhub.db)")
	c.io.Println("  -bolt <path>          bbolt session store, if sessions live there")
	c.io.Println("  -version              show version information")
}

func (c *Cli) runSeed(ctx context.Context, args []string) error {
	var email, name string
	if len(args) > 0 {
		email = args[0]
	}
	if len(args) > 1 {
		name = args[1]
	}

	if email == "" {
		var err error
		email, err = c.io.ReadInput("Email: ")
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}

	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	confirm, err := c.io.ReadPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	created, err := c.seeder.EnsureSuperAdmin(ctx, email, name, password)
	if err != nil {
		return err
	}

	if created {
		c.io.Printf("Superadmin %s created\n", validation.NormalizeEmail(email))
	} else {
		c.io.Printf("Superadmin %s is present\n", validation.NormalizeEmail(email))
	}
	return nil
}

func (c *Cli) runSessions(ctx context.Context, args []string) error {
	user, err := c.lookup(ctx, args)
	if err != nil {
		return err
	}

	sessions, err := c.sessions.List(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		c.io.Println("No sessions")
		return nil
	}

	c.io.Printf("%-36s  %-20s  %-20s  %s\n", "ID", "ISSUED", "EXPIRES", "STATE")
	for _, s := range sessions {
		state := "active"
		if s.Revoked {
			state = "revoked: " + string(s.RevokeReason)
		}
		c.io.Printf("%-36s  %-20s  %-20s  %s\n",
			s.ID,
			s.IssuedAt.UTC().Format(time.DateTime),
			s.ExpiresAt.UTC().Format(time.DateTime),
			state,
		)
	}
	return nil
}

func (c *Cli) runRevokeAll(ctx context.Context, args []string) error {
	user, err := c.lookup(ctx, args)
	if err != nil {
		return err
	}

	n, err := c.sessions.RevokeAll(ctx, user.ID, models.ReasonAdmin)
	if err != nil {
		return err
	}
	c.io.Printf("Revoked %d session(s) of %s\n", n, user.Email)
	return nil
}

func (c *Cli) runCleanup(ctx context.Context) error {
	n, err := c.sessions.Cleanup(ctx)
	if err != nil {
		return err
	}
	c.io.Printf("Deleted %d expired session(s)\n", n)
	return nil
}

func (c *Cli) lookup(ctx context.Context, args []string) (*models.User, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, errors.New("email argument is required")
	}
	email := validation.NormalizeEmail(args[0])

	user, err := c.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, fmt.Errorf("user %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
