package session

import "errors"

var (
	// ErrInvalidRefreshToken indicates an absent, expired, revoked or foreign refresh secret.
	// It is terminal: the client must log in again.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrSuspectedReuse indicates that a revoked refresh secret was presented again.
	// Every session of the owner has been revoked by the time it is returned.
	ErrSuspectedReuse = errors.New("suspected refresh token reuse")
)
