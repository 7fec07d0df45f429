package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"flowguard/internal/models"
)

// adminAuthMiddleware enforces bearer token authentication for mutating
// endpoints. The token is compared in constant time against the configured
// admin token.
func adminAuthMiddleware(adminToken string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization required")
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeUnauthorized(w, "Invalid authorization format")
				return
			}

			token := authHeader[len(prefix):]
			if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				writeUnauthorized(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	errorResp := models.NewErrorResponse(message, models.ErrorCodeUnauthorized)
	json.NewEncoder(w).Encode(errorResp)
}
