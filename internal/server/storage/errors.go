package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this email already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrSessionNotFound indicates that no matching refresh session exists
	ErrSessionNotFound = errors.New("refresh session not found")

	// ErrSessionConflict indicates that a conditional session update lost a race:
	// the record was already revoked or expired when the write was attempted
	ErrSessionConflict = errors.New("refresh session conflict")
)
