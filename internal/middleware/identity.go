// internal/middleware/identity.go
//
// Caller identity from upstream auth headers.
//
// Context
// -------
// metastore sits behind an authenticating proxy (Keystone auth_token or an
// API gateway) that validates the token and forwards the result as
// headers.  Identity copies them onto the request context as an
// auth.Identity; the policy Enforcer reads it back.
//
//	X-Project-Id   required, the caller's project
//	X-User-Id      optional
//	X-Roles        optional, comma-separated
//
// A request without X-Project-Id is answered 401 before any route runs.
package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/auth"
)

// Header names read by Identity.
const (
	HeaderProjectID = "X-Project-Id"
	HeaderUserID    = "X-User-Id"
	HeaderRoles     = "X-Roles"
)

// Identity attaches auth.Identity or rejects the request with 401.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project := strings.TrimSpace(r.Header.Get(HeaderProjectID))
		if project == "" {
			zap.S().Debugw("request without project identity", "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"authentication required"}}`))
			return
		}

		id := auth.NewIdentity(project,
			strings.TrimSpace(r.Header.Get(HeaderUserID)),
			strings.Split(r.Header.Get(HeaderRoles), ","))
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}
