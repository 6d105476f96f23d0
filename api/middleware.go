package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tryonix/tryonix-server/apperr"
)

type contextKey string

const userIDKey contextKey = "userID"

// CORSMiddleware allows the browser client to call the API cross-origin.
func CORSMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// AuthMiddleware validates the Bearer token and stores the verified user id
// in the request context. Handlers behind it trust that id unconditionally.
func AuthMiddleware(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			RespondJSON(w, http.StatusUnauthorized, errorBody{Message: "Authorization token required"})
			return
		}

		userID, err := ParseToken(tokenString, secret)
		if err != nil {
			RespondJSON(w, http.StatusUnauthorized, errorBody{Message: "Invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// UserIDFromContext returns the verified user id set by AuthMiddleware.
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", apperr.Authentication("Not authenticated", nil)
	}
	return userID, nil
}
