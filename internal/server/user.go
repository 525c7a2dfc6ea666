package server

import (
	"context"
	"net/http"
	"strings"
)

// userHeader identifies the caller. Authentication happens in front of this
// service; the header is trusted as-is.
const userHeader = "X-User-ID"

type ctxKey int

const userKey ctxKey = iota

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(userHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, userHeader+" header required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}
