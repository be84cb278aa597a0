// components/metadata/handlers.go
//
// HTTP handlers for the metadata API.
//
// Workflow
// --------
//  1. Resolve the scope (and key) from the path, or the IndexQuery.
//  2. Decode and check the body for writes.
//  3. Call the Service; it authorizes, notifies, and talks to the store.
//  4. Write the view, or map the error through fail.
//
// `GET /{resource_type}/{resource_id}?exclude=true` skips paging and
// answers with every live key of the resource as one object.
package metadata

import (
	"net/http"

	"github.com/yanizio/metastore/internal/metadata"
)

/*──────────────────────────── Reads ────────────────────────────────────────*/

func (c *Component) index(w http.ResponseWriter, r *http.Request) {
	q, err := indexQuery(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.list(w, r, q)
}

func (c *Component) indexResource(w http.ResponseWriter, r *http.Request) {
	q, err := indexQuery(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	scope, err := scopeOf(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	exclude, err := boolParam(r.URL.Query(), "exclude")
	if err != nil {
		c.fail(w, r, err)
		return
	}
	if exclude {
		c.values(w, r, scope)
		return
	}
	q.ResourceType, q.ResourceID = scope.ResourceType, scope.ResourceID
	c.list(w, r, q)
}

func (c *Component) values(w http.ResponseWriter, r *http.Request, scope metadata.Scope) {
	m, err := c.svc.Values(r.Context(), scope)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resourceResponse{Metadata: m})
}

func (c *Component) list(w http.ResponseWriter, r *http.Request, q metadata.IndexQuery) {
	page, err := c.svc.Index(r.Context(), q)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Metadatas: nonNil(page.Views),
		Links:     nextLinks(r, page.Next, q.Limit),
	})
}

func (c *Component) show(w http.ResponseWriter, r *http.Request) {
	scope, key, err := keyScopeOf(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	v, err := c.svc.Show(r.Context(), scope, key)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Metadata: *v})
}

/*──────────────────────────── Mutations ────────────────────────────────────*/

func (c *Component) create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	body, err := decodeBody(w, r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	views, err := c.svc.Create(r.Context(), scope, body.Metadata)
	if err != nil {
		if len(views) > 0 {
			c.log.Warnw("metadata create partially applied",
				"project_id", scope.ProjectID, "created", len(views), "err", err)
		}
		c.failCommitted(w, r, err, views)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Metadatas: nonNil(views)})
}

func (c *Component) update(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	body, err := decodeBody(w, r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	views, err := c.svc.Update(r.Context(), scope, body.Metadata)
	if err != nil {
		c.failCommitted(w, r, err, views)
		return
	}
	writeJSON(w, http.StatusAccepted, listResponse{Metadatas: nonNil(views)})
}

func (c *Component) edit(w http.ResponseWriter, r *http.Request) {
	scope, key, err := keyScopeOf(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	body, err := decodeBody(w, r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	value, ok := body.value(key)
	if !ok {
		c.fail(w, r, badRequest("metadata must contain the key %q", key))
		return
	}
	v, err := c.svc.Edit(r.Context(), scope, key, value)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Metadata: *v})
}

func (c *Component) deleteAll(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.remove(w, r, scope, "")
}

func (c *Component) deleteKey(w http.ResponseWriter, r *http.Request) {
	scope, key, err := keyScopeOf(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.remove(w, r, scope, key)
}

func (c *Component) remove(w http.ResponseWriter, r *http.Request, scope metadata.Scope, key string) {
	n, err := c.svc.Delete(r.Context(), scope, key)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.log.Debugw("metadata deleted", "project_id", scope.ProjectID, "rows", n)
	w.WriteHeader(http.StatusAccepted)
}
