package handlers

import (
	"context"
	"net/http"
)

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, or "" outside an
// authenticated request
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// requireUser writes a 401 when the request carries no user
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := UserIDFromContext(r.Context())
	if id == "" {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return "", false
	}
	return id, true
}
