package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/logger"
)

const (
	UserIDHeader = "X-User-ID"
	RoleHeader   = "X-User-Role"
)

// RoleModerator may delete any review.
const RoleModerator = "moderator"

type roleKeyType struct{}

var roleKey roleKeyType

// Identity copies the caller identity headers into the request context.
// The portal trusts these headers; they are set by the fronting client.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			ctx = logger.WithUserID(ctx, id)
		}
		if role := strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader))); role != "" {
			ctx = context.WithValue(ctx, roleKey, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the caller's user id, or "".
func UserIDFromContext(ctx context.Context) string {
	return logger.UserIDFromContext(ctx)
}

// RoleFromContext returns the caller's role in lower case, or "".
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// RequireUser rejects requests without a user id with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+UserIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}
