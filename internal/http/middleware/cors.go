package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS is only mounted on the admin API; the SMS webhook is server to server.
func CORS(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}
