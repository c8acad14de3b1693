package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{name: "valid", input: "Alice", wantErr: false},
		{name: "valid - two runes", input: "Al", wantErr: false},
		{name: "valid - unicode", input: "Анна", wantErr: false},
		{name: "valid - max length", input: strings.Repeat("a", MaxNameLen), wantErr: false},
		{name: "invalid - empty", input: "", wantErr: true, errMsg: "name cannot be empty"},
		{name: "invalid - whitespace only", input: "   ", wantErr: true, errMsg: "name cannot be empty"},
		{name: "invalid - too short", input: "A", wantErr: true, errMsg: "at least 2"},
		{name: "invalid - too long", input: strings.Repeat("a", MaxNameLen+1), wantErr: true, errMsg: "must not exceed 80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{name: "valid", email: "alice@example.com", wantErr: false},
		{name: "valid - subdomain", email: "bob.smith@mail.example.org", wantErr: false},
		{name: "valid - plus", email: "alice+tasks@example.com", wantErr: false},
		{name: "invalid - empty", email: "", wantErr: true},
		{name: "invalid - no at", email: "alice.example.com", wantErr: true},
		{name: "invalid - no tld", email: "alice@example", wantErr: true},
		{name: "invalid - spaces", email: "alice @example.com", wantErr: true},
		{name: "invalid - display name", email: "Alice <alice@example.com>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		validate func(string) error
		wantErr  bool
		errMsg   string
	}{
		{name: "register - min length", password: "123456", validate: ValidatePassword},
		{name: "register - max bytes", password: strings.Repeat("x", MaxPasswordBytes), validate: ValidatePassword},
		{name: "register - over bcrypt limit", password: strings.Repeat("a", 100), validate: ValidatePassword, wantErr: true, errMsg: "must not exceed 72 bytes"},
		{name: "register - too long", password: strings.Repeat("x", MaxPasswordLen+1), validate: ValidatePassword, wantErr: true, errMsg: "must not exceed 128"},
		{name: "register - too short", password: "12345", validate: ValidatePassword, wantErr: true, errMsg: "at least 6"},
		{name: "register - empty", password: "", validate: ValidatePassword, wantErr: true, errMsg: "cannot be empty"},
		{name: "change - max length", password: strings.Repeat("x", MaxChangedPasswordLen), validate: ValidateNewPassword},
		{name: "change - cyrillic within limit", password: strings.Repeat("я", 36), validate: ValidateNewPassword},
		{name: "change - cyrillic over bcrypt limit", password: strings.Repeat("я", MaxChangedPasswordLen), validate: ValidateNewPassword, wantErr: true, errMsg: "must not exceed 72 bytes"},
		{name: "change - too long", password: strings.Repeat("x", MaxChangedPasswordLen+1), validate: ValidateNewPassword, wantErr: true, errMsg: "must not exceed 50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.password)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateOTP(t *testing.T) {
	assert.NoError(t, ValidateOTP("012345"))
	assert.Error(t, ValidateOTP("12345"))
	assert.Error(t, ValidateOTP("12345a"))
	assert.Error(t, ValidateOTP(""))
}
