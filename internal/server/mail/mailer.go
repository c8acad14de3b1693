package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

//go:generate moq -out mailer_mock.go . Mailer

// Message is an outgoing notification
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers notifications to account holders
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them.
// Only the recipient and subject are logged: bodies carry secrets.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer for development setups without SMTP
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send implements Mailer
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	m.logger.InfoContext(ctx, "Mail queued",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// OTPMessage builds the account verification mail
func OTPMessage(to, otp string) Message {
	return Message{
		To:      to,
		Subject: "Your TaskHub verification code",
		Body:    fmt.Sprintf("Your verification code is %s. It is valid for 10 minutes.", otp),
	}
}

// ResetMessage builds the password reset mail
func ResetMessage(to, resetURL string) Message {
	return Message{
		To:      to,
		Subject: "Password reset request",
		Body: fmt.Sprintf("You requested a password reset. Your reset link is: %s. "+
			"It is valid for 1 hour. If you did not request a password reset, please ignore this email.", resetURL),
	}
}

// WelcomeMessage builds the mail for accounts created by an administrator
func WelcomeMessage(to, role, tempPassword, clientURL string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your %s account on TaskHub", role),
		Body: fmt.Sprintf("Your %s account has been created.\nLogin email: %s\nTemporary password: %s\n"+
			"Please log in at %s and change your password.", role, to, tempPassword, loginURL(clientURL)),
	}
}

// RoleChangeMessage builds the notice sent after a role change
func RoleChangeMessage(to, role, clientURL string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your role has changed to %s", role),
		Body:    fmt.Sprintf("Your TaskHub role is now %s. Log in at %s to access your new permissions.", role, loginURL(clientURL)),
	}
}

func loginURL(clientURL string) string {
	return strings.TrimRight(clientURL, "/") + "/login"
}
