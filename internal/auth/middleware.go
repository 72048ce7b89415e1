package auth

import (
	"context"
	"net/http"
	"strings"
)

type userIDKey struct{}

func UserIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(userIDKey{}).(uint64)
	return id, ok
}

// RequireAuth admits requests carrying a valid bearer token and stores the
// operator id on the context.
func RequireAuth(jwtSvc *JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			uid, err := jwtSvc.Verify(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, uid)))
		})
	}
}
