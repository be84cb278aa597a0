// components/metadata/handlers_test.go
//
// Handler tests against a stub Service.
//
// Each sub-test mounts the component exactly as cmd/metastore does, under
// `/v1.0/{tenant_id}/metadata`, fires an httptest request, and checks the
// status, body, and what reached the Service.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/metastore/internal/component"
	"github.com/yanizio/metastore/internal/metadata"
	"github.com/yanizio/metastore/internal/policy"
)

type stubService struct {
	query metadata.IndexQuery
	scope metadata.Scope
	key   string
	items metadata.Items
	value json.RawMessage

	page   *metadata.Page
	views  []metadata.View
	values map[string]any
	err    error
}

func (s *stubService) Values(_ context.Context, scope metadata.Scope) (map[string]any, error) {
	s.scope = scope
	return s.values, s.err
}

func (s *stubService) Index(_ context.Context, q metadata.IndexQuery) (*metadata.Page, error) {
	s.query = q
	if s.err != nil {
		return nil, s.err
	}
	if s.page == nil {
		return &metadata.Page{}, nil
	}
	return s.page, nil
}

func (s *stubService) Show(_ context.Context, scope metadata.Scope, key string) (*metadata.View, error) {
	s.scope, s.key = scope, key
	if s.err != nil {
		return nil, s.err
	}
	return &s.views[0], nil
}

func (s *stubService) Create(_ context.Context, scope metadata.Scope, items metadata.Items) ([]metadata.View, error) {
	s.scope, s.items = scope, items
	return s.views, s.err
}

func (s *stubService) Edit(_ context.Context, scope metadata.Scope, key string, value json.RawMessage) (*metadata.View, error) {
	s.scope, s.key, s.value = scope, key, value
	if s.err != nil {
		return nil, s.err
	}
	return &s.views[0], nil
}

func (s *stubService) Update(_ context.Context, scope metadata.Scope, items metadata.Items) ([]metadata.View, error) {
	s.scope, s.items = scope, items
	return s.views, s.err
}

func (s *stubService) Delete(_ context.Context, scope metadata.Scope, key string) (int64, error) {
	s.scope, s.key = scope, key
	return 1, s.err
}

var redView = metadata.View{
	ID: "id1", ProjectID: "p1", ResourceType: "server", ResourceID: "r1",
	Key: "color", Value: "red",
	Created: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	Updated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

func serve(t *testing.T, svc Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	component.Mount(r, "/v1.0/{tenant_id}/metadata", New(svc, nil))

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestIndexRoutes(t *testing.T) {
	t.Run("aggregate index reads query filters", func(t *testing.T) {
		svc := &stubService{}
		rec := serve(t, svc, http.MethodGet,
			"/v1.0/p1/metadata?resource_type=server&key=color&value=red&project_id=p2&all_projects=true&marker=20&limit=10", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, metadata.IndexQuery{
			TenantID: "p1", ResourceType: "server", Key: "color", Value: "red",
			ProjectID: "p2", AllProjects: true, Marker: 20, Limit: 10,
		}, svc.query)
		assert.JSONEq(t, `{"metadatas":[]}`, rec.Body.String())
	})

	t.Run("per-resource index takes scope from the path", func(t *testing.T) {
		svc := &stubService{page: &metadata.Page{Views: []metadata.View{redView}}}
		rec := serve(t, svc, http.MethodGet, "/v1.0/p1/metadata/server/r1?resource_type=volume", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "server", svc.query.ResourceType, "path wins over query")
		assert.Equal(t, "r1", svc.query.ResourceID)

		body := decode(t, rec)
		items := body["metadatas"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "red", items[0].(map[string]any)["color"])
		assert.NotContains(t, body, "links")
	})

	t.Run("next link repeats the query with the new marker", func(t *testing.T) {
		next := 40
		svc := &stubService{page: &metadata.Page{Views: []metadata.View{redView}, Next: &next}}
		rec := serve(t, svc, http.MethodGet, "/v1.0/p1/metadata/server/r1?limit=20&marker=20", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Links []struct {
				Rel  string `json:"rel"`
				Href string `json:"href"`
			} `json:"links"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Links, 1)
		assert.Equal(t, "next", body.Links[0].Rel)
		assert.Equal(t, "http://example.com/v1.0/p1/metadata/server/r1?limit=20&marker=40", body.Links[0].Href)
	})

	t.Run("exclude answers with the key map", func(t *testing.T) {
		svc := &stubService{values: map[string]any{"color": "red", "size": float64(40)}}
		rec := serve(t, svc, http.MethodGet, "/v1.0/p1/metadata/server/r1?exclude=true", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, metadata.Scope{ProjectID: "p1", ResourceType: "server", ResourceID: "r1"}, svc.scope)
		assert.Equal(t, metadata.IndexQuery{}, svc.query, "paged index is not called")
		assert.JSONEq(t, `{"metadata": {"color": "red", "size": 40}}`, rec.Body.String())
	})

	t.Run("bad paging params are 400", func(t *testing.T) {
		for _, q := range []string{"marker=abc", "limit=-1", "all_projects=maybe", "exclude=perhaps"} {
			svc := &stubService{}
			rec := serve(t, svc, http.MethodGet, "/v1.0/p1/metadata?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})
}

func TestShowRoute(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := &stubService{views: []metadata.View{redView}}
		rec := serve(t, svc, http.MethodGet, "/v1.0/p1/metadata/server/r1/color", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, metadata.Scope{ProjectID: "p1", ResourceType: "server", ResourceID: "r1"}, svc.scope)
		assert.Equal(t, "color", svc.key)
		assert.Equal(t, "red", decode(t, rec)["metadata"].(map[string]any)["color"])
	})

	t.Run("escaped key is decoded once", func(t *testing.T) {
		cases := map[string]string{
			"a%20b":  "a b",
			"a%2541": "a%41",
			"100%25": "100%",
			"a%2Fb":  "a/b",
		}
		for segment, want := range cases {
			svc := &stubService{views: []metadata.View{redView}}
			rec := serve(t, svc, http.MethodGet, "/v1.0/p1/metadata/server/r1/"+segment, "")
			assert.Equal(t, http.StatusOK, rec.Code, segment)
			assert.Equal(t, want, svc.key, segment)
		}
	})

	t.Run("not found", func(t *testing.T) {
		svc := &stubService{err: &metadata.KeyNotFoundError{Key: "color", ResourceType: "server", ResourceID: "r1"}}
		rec := serve(t, svc, http.MethodGet, "/v1.0/p1/metadata/server/r1/color", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		errBody := decode(t, rec)["error"].(map[string]any)
		assert.EqualValues(t, 404, errBody["code"])
		assert.Contains(t, errBody["message"], "color")
	})
}

func TestCreateRoute(t *testing.T) {
	t.Run("order of keys reaches the service", func(t *testing.T) {
		svc := &stubService{views: []metadata.View{redView}}
		rec := serve(t, svc, http.MethodPost, "/v1.0/p1/metadata/server/r1",
			`{"metadata": {"zeta": 1, "alpha": {"x": true}, "mid": "m"}}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, svc.items.Keys())
		assert.Equal(t, `{"x":true}`, string(svc.items[1].Value))
		assert.Len(t, decode(t, rec)["metadatas"], 1)
	})

	bad := map[string]string{
		"malformed json":  `{"metadata":`,
		"missing field":   `{"other": {}}`,
		"not an object":   `{"metadata": [1, 2]}`,
		"empty object":    `{"metadata": {}}`,
		"empty key":       `{"metadata": {"": 1}}`,
		"null metadata":   `{"metadata": null}`,
		"scalar metadata": `{"metadata": "x"}`,
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			svc := &stubService{}
			rec := serve(t, svc, http.MethodPost, "/v1.0/p1/metadata/server/r1", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Nil(t, svc.items, "service must not be called")
		})
	}

	t.Run("oversized body is 413", func(t *testing.T) {
		big := `{"metadata": {"k": "` + strings.Repeat("x", maxBodyBytes) + `"}}`
		rec := serve(t, &stubService{}, http.MethodPost, "/v1.0/p1/metadata/server/r1", big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("duplicate is 409", func(t *testing.T) {
		svc := &stubService{err: &metadata.KeyExistsError{Key: "color"}}
		rec := serve(t, svc, http.MethodPost, "/v1.0/p1/metadata/server/r1", `{"metadata": {"color": "red"}}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("duplicate after earlier inserts lists the committed keys", func(t *testing.T) {
		sizeView := redView
		sizeView.Key, sizeView.Value = "size", 40
		svc := &stubService{
			views: []metadata.View{redView, sizeView},
			err:   &metadata.KeyExistsError{Key: "tier"},
		}
		rec := serve(t, svc, http.MethodPost, "/v1.0/p1/metadata/server/r1",
			`{"metadata": {"color": "red", "size": 40, "tier": "gold"}}`)

		require.Equal(t, http.StatusConflict, rec.Code)
		errBody := decode(t, rec)["error"].(map[string]any)
		assert.Contains(t, errBody["message"], "tier")
		assert.Equal(t, []any{"color", "size"}, errBody["committed"])
	})

	t.Run("creation failure is 400", func(t *testing.T) {
		svc := &stubService{err: &metadata.CreationError{Key: "color", Err: errors.New("too long")}}
		rec := serve(t, svc, http.MethodPost, "/v1.0/p1/metadata/server/r1", `{"metadata": {"color": "red"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("forbidden is 403", func(t *testing.T) {
		svc := &stubService{err: policy.ErrForbidden}
		rec := serve(t, svc, http.MethodPost, "/v1.0/p1/metadata/server/r1", `{"metadata": {"color": "red"}}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("storage fault is 500 without detail", func(t *testing.T) {
		svc := &stubService{err: errors.New("dial tcp 10.0.0.5:3306: connection refused")}
		rec := serve(t, svc, http.MethodPost, "/v1.0/p1/metadata/server/r1", `{"metadata": {"color": "red"}}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	})
}

func TestUpdateEditDeleteRoutes(t *testing.T) {
	t.Run("update is 202", func(t *testing.T) {
		svc := &stubService{views: []metadata.View{redView}}
		rec := serve(t, svc, http.MethodPut, "/v1.0/p1/metadata/server/r1", `{"metadata": {"a": 1, "b": 2}}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []string{"a", "b"}, svc.items.Keys())
	})

	t.Run("edit takes the path key from the body", func(t *testing.T) {
		svc := &stubService{views: []metadata.View{redView}}
		rec := serve(t, svc, http.MethodPut, "/v1.0/p1/metadata/server/r1/color",
			`{"metadata": {"other": 1, "color": "blue"}}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "color", svc.key)
		assert.Equal(t, `"blue"`, string(svc.value))
	})

	t.Run("edit without the path key is 400", func(t *testing.T) {
		svc := &stubService{views: []metadata.View{redView}}
		rec := serve(t, svc, http.MethodPut, "/v1.0/p1/metadata/server/r1/color", `{"metadata": {"size": 1}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.key)
	})

	t.Run("delete one key", func(t *testing.T) {
		svc := &stubService{}
		rec := serve(t, svc, http.MethodDelete, "/v1.0/p1/metadata/server/r1/color", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "color", svc.key)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("delete every key", func(t *testing.T) {
		svc := &stubService{key: "sentinel"}
		rec := serve(t, svc, http.MethodDelete, "/v1.0/p1/metadata/server/r1", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "", svc.key)
	})

	t.Run("unauthenticated is 401", func(t *testing.T) {
		svc := &stubService{err: policy.ErrUnauthenticated}
		rec := serve(t, svc, http.MethodDelete, "/v1.0/p1/metadata/server/r1", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
