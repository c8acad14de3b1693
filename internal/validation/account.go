package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// EmailPattern определяет допустимый формат email: local@domain.tld
var EmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	// MinNameLen минимальная длина отображаемого имени
	MinNameLen = 2
	// MaxNameLen максимальная длина отображаемого имени
	MaxNameLen = 80

	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 6
	// MaxPasswordLen максимальная длина пароля при регистрации
	MaxPasswordLen = 128
	// MaxChangedPasswordLen максимальная длина нового пароля при смене
	MaxChangedPasswordLen = 50
	// MaxPasswordBytes предел bcrypt, многобайтовые символы считаются по байтам
	MaxPasswordBytes = 72

	// OTPLen длина кода подтверждения
	OTPLen = 6
)

// NormalizeEmail trims and lower-cases an address; emails are unique case-insensitively
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateName проверяет отображаемое имя пользователя
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	n := utf8.RuneCountInString(name)
	if n < MinNameLen {
		return fmt.Errorf("name must be at least %d characters long", MinNameLen)
	}
	if n > MaxNameLen {
		return fmt.Errorf("name must not exceed %d characters", MaxNameLen)
	}

	return nil
}

// ValidateEmail проверяет формат email
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if !EmailPattern.MatchString(email) {
		return fmt.Errorf("email is not valid")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("email is not valid")
	}

	return nil
}

// ValidatePassword проверяет пароль при регистрации и сбросе
func ValidatePassword(password string) error {
	return validatePassword(password, MaxPasswordLen)
}

// ValidateNewPassword проверяет новый пароль при смене
func ValidateNewPassword(password string) error {
	return validatePassword(password, MaxChangedPasswordLen)
}

// ValidateOTP проверяет формат кода подтверждения
func ValidateOTP(code string) error {
	if len(code) != OTPLen {
		return fmt.Errorf("otp must be %d digits", OTPLen)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("otp must be %d digits", OTPLen)
		}
	}
	return nil
}

func validatePassword(password string, maxLen int) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	n := utf8.RuneCountInString(password)
	if n < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	if n > maxLen {
		return fmt.Errorf("password must not exceed %d characters", maxLen)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordBytes)
	}

	return nil
}
