package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/studium-labs/studium/internal/api"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// TokenAuth validates the static service token and extracts the caller's
// user id from the X-User-ID header set by the upstream platform. An empty
// configured token disables token checking for local development; the user
// id is still required.
func TokenAuth(apiToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiToken != "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					api.Error(w, http.StatusUnauthorized, "missing authorization header")
					return
				}

				if !strings.HasPrefix(authHeader, "Bearer ") {
					api.Error(w, http.StatusUnauthorized, "invalid authorization format")
					return
				}

				token := strings.TrimPrefix(authHeader, "Bearer ")
				if subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
					api.Error(w, http.StatusUnauthorized, "invalid api token")
					return
				}
			}

			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				api.Error(w, http.StatusUnauthorized, "missing user id")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
