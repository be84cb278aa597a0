// components/metadata/api_test.go
//
// End-to-end: HTTP → Identity middleware → Service → Enforcer → SQLite.
package metadata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/metastore/internal/component"
	"github.com/yanizio/metastore/internal/database"
	"github.com/yanizio/metastore/internal/metadata"
	"github.com/yanizio/metastore/internal/middleware"
	"github.com/yanizio/metastore/internal/policy"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "api.db")
	require.NoError(t, database.Up(database.DriverSQLite, dsn, ""))
	db, err := database.Open(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := metadata.NewService(
		metadata.NewRepository(db, metadata.Options{}),
		policy.NewEnforcer(nil), nil, nil)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		component.Mount(r, "/v1.0/{tenant_id}/metadata", New(svc, nil))
	})
	return &apiClient{t: t, handler: r}
}

func (c *apiClient) do(project, roles, method, target, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if project != "" {
		req.Header.Set(middleware.HeaderProjectID, project)
	}
	if roles != "" {
		req.Header.Set(middleware.HeaderRoles, roles)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func TestAPILifecycle(t *testing.T) {
	api := newAPI(t)
	const base = "/v1.0/p1/metadata/server/r1"

	rec := api.do("p1", "member", http.MethodPost, base, `{"metadata": {"color": "red", "size": {"gb": 40}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created listResponseJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Metadatas, 2)
	assert.Equal(t, "red", created.Metadatas[0]["color"])
	assert.Equal(t, map[string]any{"gb": float64(40)}, created.Metadatas[1]["size"])
	assert.Equal(t, "p1", created.Metadatas[0]["project_id"])

	rec = api.do("p1", "member", http.MethodPost, base, `{"metadata": {"color": "blue"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "live key is unique")

	rec = api.do("p1", "member", http.MethodGet, base+"/color", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"color":"red"`)

	rec = api.do("p1", "member", http.MethodPut, base+"/color", `{"metadata": {"color": "green"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"color":"green"`)

	rec = api.do("p1", "member", http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed listResponseJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Metadatas, 2)

	rec = api.do("p1", "member", http.MethodDelete, base+"/color", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = api.do("p1", "member", http.MethodGet, base+"/color", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do("p1", "member", http.MethodPost, base, `{"metadata": {"color": "again"}}`)
	assert.Equal(t, http.StatusOK, rec.Code, "a deleted key may be created again")
}

func TestAPIKeysWithPercent(t *testing.T) {
	api := newAPI(t)
	const base = "/v1.0/p1/metadata/server/r1"

	rec := api.do("p1", "", http.MethodPost, base, `{"metadata": {"100%": "full", "a%41": "literal"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do("p1", "", http.MethodGet, base+"/100%25", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"100%":"full"`)

	rec = api.do("p1", "", http.MethodGet, base+"/a%2541", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"a%41":"literal"`)

	rec = api.do("p1", "", http.MethodPut, base+"/100%25", `{"metadata": {"100%": "empty"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do("p1", "", http.MethodDelete, base+"/100%25", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = api.do("p1", "", http.MethodGet, base+"/100%25", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIPartialCreateAndExclude(t *testing.T) {
	api := newAPI(t)
	const base = "/v1.0/p1/metadata/server/r1"

	require.Equal(t, http.StatusOK, api.do("p1", "", http.MethodPost, base, `{"metadata": {"tier": "gold"}}`).Code)

	rec := api.do("p1", "", http.MethodPost, base, `{"metadata": {"color": "red", "tier": "silver", "size": 1}}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var failed struct {
		Error struct {
			Committed []string `json:"committed"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.Equal(t, []string{"color"}, failed.Error.Committed)

	rec = api.do("p1", "", http.MethodGet, base+"?exclude=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"metadata": {"color": "red", "tier": "gold"}}`, rec.Body.String())
}

func TestAPIAuthorization(t *testing.T) {
	api := newAPI(t)
	const base = "/v1.0/p1/metadata/server/r1"

	rec := api.do("p1", "", http.MethodPost, base, `{"metadata": {"color": "red"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("missing identity is 401", func(t *testing.T) {
		rec := api.do("", "", http.MethodGet, base, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("another project is 403", func(t *testing.T) {
		rec := api.do("p2", "member", http.MethodGet, base+"/color", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin may read any project", func(t *testing.T) {
		rec := api.do("p2", "admin", http.MethodGet, base+"/color", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("all_projects needs admin", func(t *testing.T) {
		rec := api.do("p1", "member", http.MethodGet, "/v1.0/p1/metadata?all_projects=true", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = api.do("p1", "admin", http.MethodGet, "/v1.0/p1/metadata?all_projects=true", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAPIPaging(t *testing.T) {
	api := newAPI(t)
	const base = "/v1.0/p1/metadata/server/r1"

	var b strings.Builder
	b.WriteString(`{"metadata": {`)
	for i := 0; i < 5; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`"k` + string(rune('a'+i)) + `": 1`)
	}
	b.WriteString("}}")
	require.Equal(t, http.StatusOK, api.do("p1", "", http.MethodPost, base, b.String()).Code)

	seen := map[string]bool{}
	target := base + "?limit=2"
	for pages := 0; target != ""; pages++ {
		require.Less(t, pages, 5, "paging must terminate")

		rec := api.do("p1", "", http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var page listResponseJSON
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		for _, m := range page.Metadatas {
			for k := range m {
				if len(k) == 2 && k[0] == 'k' {
					assert.False(t, seen[k], "key %s repeated across pages", k)
					seen[k] = true
				}
			}
		}

		target = ""
		if len(page.Links) > 0 {
			target = strings.TrimPrefix(page.Links[0].Href, "http://example.com")
		}
	}
	assert.Len(t, seen, 5)
}

// listResponseJSON decodes flat views generically.
type listResponseJSON struct {
	Metadatas []map[string]any `json:"metadatas"`
	Links     []link           `json:"links"`
}
