// internal/policy/policy.go
//
// Rule-based authorization for metadata actions.
//
// Context
// -------
// Every Service verb asks the Enforcer one question before it touches the
// store: may the caller on ctx perform action against a target owned by
// project X?  Rules are small boolean expressions in the oslo.policy
// dialect so operators can override them from config:
//
//	"@"                        always allow
//	"!"                        always deny
//	"role:admin"               caller holds the role
//	"is_admin:True"            caller is an admin
//	"project_id:%(tenant)s"    caller's project owns the target
//	"rule:admin_or_owner"      another named rule
//	"a or b", "a and b"        disjunction of conjunctions
//
// Unknown actions, unknown rules, and missing identities all deny.
//
// Notes
// -----
// • Rule references are resolved at evaluation time with a depth limit,
//   so a cycle denies instead of looping.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yanizio/metastore/internal/auth"
)

var (
	// ErrForbidden is returned when a rule evaluates to false.
	ErrForbidden = errors.New("policy does not allow this action")
	// ErrUnauthenticated is returned when ctx carries no identity.
	ErrUnauthenticated = errors.New("no authenticated identity")
)

const maxDepth = 8

// Target describes the object being acted on.
type Target struct {
	ProjectID string
}

// Defaults mirrors the shipped rule set: owners and admins may do
// everything to their project's metadata; only admins may list across
// projects.
func Defaults() map[string]string {
	return map[string]string{
		"admin":                       "role:admin",
		"admin_or_owner":              "is_admin:True or project_id:%(tenant)s",
		"metadata:index":              "rule:admin_or_owner",
		"metadata:index:all_projects": "rule:admin",
		"metadata:create":             "rule:admin_or_owner",
		"metadata:show":               "rule:admin_or_owner",
		"metadata:update":             "rule:admin_or_owner",
		"metadata:delete":             "rule:admin_or_owner",
		"metadata:edit":               "rule:admin_or_owner",
	}
}

// Enforcer evaluates rules.  It is immutable after construction and safe
// for concurrent use.
type Enforcer struct {
	rules map[string]string
}

// NewEnforcer layers overrides on top of Defaults.
func NewEnforcer(overrides map[string]string) *Enforcer {
	rules := Defaults()
	for k, v := range overrides {
		rules[k] = strings.TrimSpace(v)
	}
	return &Enforcer{rules: rules}
}

// Rule returns the expression bound to name.
func (e *Enforcer) Rule(name string) (string, bool) {
	r, ok := e.rules[name]
	return r, ok
}

// Authorize fails closed unless the identity on ctx satisfies action.
func (e *Enforcer) Authorize(ctx context.Context, action string, target Target) error {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	expr, ok := e.rules[action]
	if !ok {
		return fmt.Errorf("%w: %s (no rule)", ErrForbidden, action)
	}
	if !e.eval(expr, id, target, 0) {
		return fmt.Errorf("%w: %s", ErrForbidden, action)
	}
	return nil
}

func (e *Enforcer) eval(expr string, id auth.Identity, t Target, depth int) bool {
	if depth > maxDepth {
		return false
	}
	for _, alt := range strings.Split(expr, " or ") {
		all := true
		for _, term := range strings.Split(alt, " and ") {
			if !e.check(strings.TrimSpace(term), id, t, depth) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func (e *Enforcer) check(term string, id auth.Identity, t Target, depth int) bool {
	switch term {
	case "@", "":
		return true
	case "!":
		return false
	}

	kind, val, ok := strings.Cut(term, ":")
	if !ok {
		return false
	}
	switch kind {
	case "rule":
		sub, ok := e.rules[val]
		return ok && e.eval(sub, id, t, depth+1)
	case "role":
		return id.HasRole(strings.ToLower(val))
	case "is_admin":
		return strings.EqualFold(val, "true") == id.IsAdmin
	case "project_id":
		if val == "%(tenant)s" || val == "%(project_id)s" {
			return id.ProjectID != "" && id.ProjectID == t.ProjectID
		}
		return id.ProjectID == val
	}
	return false
}
