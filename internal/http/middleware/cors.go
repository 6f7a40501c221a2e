package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORS allows browser clients on the given origins. Credentials are never
// sent to a wildcard origin.
func CORS(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	if slices.Contains(allowedOrigins, "*") {
		allowCredentials = false
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		// audio chunks are posted with their own content type
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: allowCredentials,
		MaxAge:           600,
	})
}
