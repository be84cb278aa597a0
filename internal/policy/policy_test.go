package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yanizio/metastore/internal/auth"
)

func ctxAs(project string, roles ...string) context.Context {
	return auth.WithIdentity(context.Background(), auth.NewIdentity(project, "u", roles))
}

func TestDefaultRules(t *testing.T) {
	e := NewEnforcer(nil)
	own := Target{ProjectID: "p1"}
	other := Target{ProjectID: "p2"}

	cases := []struct {
		name   string
		ctx    context.Context
		action string
		target Target
		allow  bool
	}{
		{"owner creates", ctxAs("p1", "member"), "metadata:create", own, true},
		{"owner lists", ctxAs("p1"), "metadata:index", own, true},
		{"stranger edits", ctxAs("p1", "member"), "metadata:edit", other, false},
		{"admin edits anywhere", ctxAs("p1", "Admin"), "metadata:edit", other, true},
		{"member lists all projects", ctxAs("p1", "member"), "metadata:index:all_projects", own, false},
		{"admin lists all projects", ctxAs("p1", "admin"), "metadata:index:all_projects", own, true},
		{"unknown action", ctxAs("p1", "admin"), "metadata:purge", own, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := e.Authorize(c.ctx, c.action, c.target)
			if c.allow {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}

	t.Run("no identity", func(t *testing.T) {
		assert.ErrorIs(t, e.Authorize(context.Background(), "metadata:show", own), ErrUnauthenticated)
	})
}

func TestOverrides(t *testing.T) {
	t.Run("open and closed", func(t *testing.T) {
		e := NewEnforcer(map[string]string{
			"metadata:show":   "@",
			"metadata:delete": "!",
		})
		ctx := ctxAs("p1")
		assert.NoError(t, e.Authorize(ctx, "metadata:show", Target{ProjectID: "elsewhere"}))
		assert.ErrorIs(t, e.Authorize(ctx, "metadata:delete", Target{ProjectID: "p1"}), ErrForbidden)
	})

	t.Run("conjunction binds tighter than disjunction", func(t *testing.T) {
		e := NewEnforcer(map[string]string{
			"metadata:update": "role:auditor and project_id:%(tenant)s or role:admin",
		})
		t1 := Target{ProjectID: "p1"}
		assert.NoError(t, e.Authorize(ctxAs("p1", "auditor"), "metadata:update", t1))
		assert.ErrorIs(t, e.Authorize(ctxAs("p2", "auditor"), "metadata:update", t1), ErrForbidden)
		assert.NoError(t, e.Authorize(ctxAs("p2", "admin"), "metadata:update", t1))
	})

	t.Run("literal project", func(t *testing.T) {
		e := NewEnforcer(map[string]string{"metadata:index": "project_id:ops"})
		assert.NoError(t, e.Authorize(ctxAs("ops"), "metadata:index", Target{ProjectID: "p9"}))
		assert.ErrorIs(t, e.Authorize(ctxAs("p9"), "metadata:index", Target{ProjectID: "p9"}), ErrForbidden)
	})

	t.Run("rule cycle denies", func(t *testing.T) {
		e := NewEnforcer(map[string]string{
			"a":             "rule:b",
			"b":             "rule:a",
			"metadata:show": "rule:a",
		})
		assert.ErrorIs(t, e.Authorize(ctxAs("p1", "admin"), "metadata:show", Target{ProjectID: "p1"}), ErrForbidden)
	})

	t.Run("unknown term denies", func(t *testing.T) {
		e := NewEnforcer(map[string]string{"metadata:show": "group:wheel"})
		assert.ErrorIs(t, e.Authorize(ctxAs("p1", "admin"), "metadata:show", Target{ProjectID: "p1"}), ErrForbidden)
	})

	t.Run("rule lookup", func(t *testing.T) {
		e := NewEnforcer(map[string]string{"metadata:show": "  role:reader  "})
		r, ok := e.Rule("metadata:show")
		assert.True(t, ok)
		assert.Equal(t, "role:reader", r)
	})
}
