package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const userContextKey contextKey = "user"

// RequireUser is middleware that requires a caller identity. Authentication
// itself happens upstream (gateway or reverse proxy); this service trusts the
// X-User-ID header it forwards.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext retrieves the caller's user id from the request context.
func UserFromContext(ctx context.Context) string {
	userID, ok := ctx.Value(userContextKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// SetUserInContext adds a user id to the context.
// This is primarily for testing - use RequireUser middleware in production.
func SetUserInContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}
