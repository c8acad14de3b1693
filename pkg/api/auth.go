package api

import "time"

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest представляет запрос на подтверждение email кодом из письма
type VerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest представляет запрос на смену пароля
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ForgotPasswordRequest представляет запрос ссылки для сброса пароля
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest представляет запрос на установку нового пароля по токену
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

// TokenResponse представляет ответ с access token.
// Refresh token передается только в cookie.
type TokenResponse struct {
	User                *UserResponse `json:"user,omitempty"`
	AccessToken         string        `json:"accessToken"`
	ExpiresIn           int64         `json:"expiresIn"` // время жизни access token в секундах
	ForceChangePassword bool          `json:"forceChangePassword"`
}

// UserResponse представляет публичные данные пользователя
type UserResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"passwordMustChange"`
}

// SessionResponse описывает refresh-сессию пользователя без секрета
type SessionResponse struct {
	IssuedAt     time.Time  `json:"issuedAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	ID           string     `json:"id"`
	RevokeReason string     `json:"revokeReason,omitempty"`
	UserAgent    string     `json:"userAgent,omitempty"`
	IP           string     `json:"ip,omitempty"`
	Revoked      bool       `json:"revoked"`
}

// ChangeRoleRequest представляет запрос на смену роли пользователя
type ChangeRoleRequest struct {
	RoleName string `json:"roleName"`
}

// CreateUserRequest представляет запрос администратора на создание пользователя
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	RoleName string `json:"roleName,omitempty"`
}
