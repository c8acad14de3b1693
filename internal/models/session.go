package models

import "time"

// RevokeReason records why a refresh session stopped being usable
type RevokeReason string

const (
	ReasonLogout         RevokeReason = "logout"
	ReasonRotated        RevokeReason = "rotated"
	ReasonPasswordChange RevokeReason = "password_change"
	ReasonPasswordReset  RevokeReason = "password_reset"
	ReasonSuspectedReuse RevokeReason = "suspected_reuse"
	ReasonAdmin          RevokeReason = "admin"
)

// RefreshSession is one persisted refresh credential.
// The raw secret is never stored, only SecretHash.
type RefreshSession struct {
	IssuedAt     time.Time    `json:"issued_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	RevokedAt    *time.Time   `json:"revoked_at,omitempty"`
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	SecretHash   string       `json:"secret_hash"`
	RevokeReason RevokeReason `json:"revoke_reason,omitempty"`
	ReplacedBy   string       `json:"replaced_by,omitempty"`
	UserAgent    string       `json:"user_agent,omitempty"`
	IP           string       `json:"ip,omitempty"`
	Revoked      bool         `json:"revoked"`
}

// Active reports whether the session can still be exchanged at now
func (s *RefreshSession) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Expired reports whether the session is past its expiry at now
func (s *RefreshSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
