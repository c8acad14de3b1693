package auth

import "errors"

var (
	// ErrInvalidInput wraps request validation failures
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials covers both unknown email and wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotVerified indicates that the account email has not been confirmed
	ErrNotVerified = errors.New("email not verified")

	// ErrEmailTaken indicates that the email is already registered
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidOTP indicates a wrong, expired or already consumed verification code
	ErrInvalidOTP = errors.New("invalid or expired otp")

	// ErrInvalidResetToken indicates a wrong or expired password reset token
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// ErrWrongPassword indicates that the current password did not match on change
	ErrWrongPassword = errors.New("old password incorrect")

	// ErrUserNotFound indicates that the target account does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientRole indicates that the requester does not outrank the change
	ErrInsufficientRole = errors.New("insufficient privilege to change this role")
)
