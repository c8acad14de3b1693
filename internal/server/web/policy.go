package web

import "strings"

// DefaultAllowedWhenMustChange lists the path prefixes reachable while a password change is pending
var DefaultAllowedWhenMustChange = []string{
	"/profile/change-password",
	"/logout",
	"/assets",
	"/public",
	"/static",
	"/api/auth",
}

// PasswordChangePolicy decides which pages stay reachable for a user
// that must change their password first
type PasswordChangePolicy struct {
	prefixes []string
}

// NewPasswordChangePolicy creates a policy; with no prefixes the defaults apply
func NewPasswordChangePolicy(prefixes ...string) PasswordChangePolicy {
	if len(prefixes) == 0 {
		prefixes = DefaultAllowedWhenMustChange
	}
	normalized := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		normalized = append(normalized, strings.ToLower(p))
	}
	return PasswordChangePolicy{prefixes: normalized}
}

// Allowed reports whether path may be served while a password change is pending.
// Matching is a case-insensitive prefix match.
func (p PasswordChangePolicy) Allowed(path string) bool {
	if path == "" {
		return false
	}
	path = strings.ToLower(path)
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
