// internal/auth/context.go
//
// Caller identity carried on the request context.
//
// The identity is established upstream (Keystone-style auth_token
// middleware, API gateway) and copied onto the request by
// middleware.Identity.  Nothing in this package verifies credentials.
//
// Usage
// -----
//
//	ctx = auth.WithIdentity(ctx, auth.Identity{ProjectID: "p1", Roles: []string{"member"}})
//	id, ok := auth.FromContext(ctx)
//
// Notes
// -----
// • `IsAdmin` is derived from the role list by NewIdentity; callers that
//   build the struct by hand set it themselves.
package auth

import (
	"context"
	"strings"
)

// AdminRole grants cross-project access under the default policy.
const AdminRole = "admin"

// Identity is the authenticated caller.
type Identity struct {
	ProjectID string
	UserID    string
	Roles     []string
	IsAdmin   bool
}

// NewIdentity normalises roles (trimmed, lower-case, empties dropped) and
// sets IsAdmin.
func NewIdentity(projectID, userID string, roles []string) Identity {
	id := Identity{ProjectID: projectID, UserID: userID}
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		id.Roles = append(id.Roles, r)
		if r == AdminRole {
			id.IsAdmin = true
		}
	}
	return id
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// identityKey is unexported to avoid context-key collisions.
type identityKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext extracts the identity.  It returns (Identity{}, false) when
// none is set.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
