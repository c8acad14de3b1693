package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/taskhub/pkg/api"
)

// writeError sends the JSON error envelope
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Success: false,
		Code:    code,
		Message: message,
	})
}
