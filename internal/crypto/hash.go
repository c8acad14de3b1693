package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// RefreshSecretBytes is the entropy of a raw refresh secret
	RefreshSecretBytes = 48

	// ResetTokenBytes is the entropy of a password reset secret
	ResetTokenBytes = 20

	otpDigits = 6
)

// GenerateRefreshSecret returns a new hex-encoded refresh secret.
// The raw value is handed to the client once and never persisted.
func GenerateRefreshSecret() (string, error) {
	return randomHex(RefreshSecretBytes)
}

// GenerateResetToken returns a new hex-encoded password reset secret
func GenerateResetToken() (string, error) {
	return randomHex(ResetTokenBytes)
}

// GenerateOTP returns a zero-padded numeric one-time code
func GenerateOTP() (string, error) {
	limit := big.NewInt(1)
	for range otpDigits {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}

	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// HashSecret returns the SHA256 hex digest of a raw secret.
// Used for refresh secrets, reset tokens and OTP codes: only digests are stored.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifySecret compares a raw secret against a stored digest in constant time
func VerifySecret(raw, hashed string) bool {
	if raw == "" || hashed == "" {
		return false
	}
	computed := HashSecret(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hashed)) == 1
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
