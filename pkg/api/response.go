package api

// Error codes returned in ErrorResponse.Code
const (
	CodeMissingCredential  = "missing_credential"
	CodeExpiredAssertion   = "expired_assertion"
	CodeInvalidAssertion   = "invalid_assertion"
	CodeInsufficientRole   = "insufficient_role"
	CodeInvalidRefresh     = "invalid_refresh_token"
	CodeSuspectedReuse     = "suspected_reuse"
	CodeInvalidCredentials = "invalid_credentials"
	CodeNotVerified        = "not_verified"
	CodeValidation         = "validation_error"
	CodeConflict           = "conflict"
	CodeNotFound           = "not_found"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal_error"
)

// Response is the success envelope of every JSON endpoint
type Response struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Success bool   `json:"success"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Success bool   `json:"success"` // всегда false
}
