// components/metadata/metadata.go
//
// Metadata component: the JSON API over metadata.Service.
//
// Context
// -------
// Mounted at `/v1.0/{tenant_id}/metadata`.  One router serves both
// addressing modes; each handler resolves the scope from the path and
// hands it to the Service, which owns policy checks and notifications.
//
//	GET    /                                    aggregate index
//	GET    /{resource_type}/{resource_id}        per-resource index
//	GET    /{resource_type}/{resource_id}?exclude=true  key/value map
//	POST   /{resource_type}/{resource_id}        create
//	PUT    /{resource_type}/{resource_id}        update (bulk upsert)
//	DELETE /{resource_type}/{resource_id}        delete every key
//	GET    /{resource_type}/{resource_id}/{key}  show
//	PUT    /{resource_type}/{resource_id}/{key}  edit
//	DELETE /{resource_type}/{resource_id}/{key}  delete one key
//
// Notes
// -----
//   - Request bodies are `{"metadata": {...}}`; member order is kept.
//   - Errors are `{"error": {"code": n, "message": "..."}}`.
package metadata

import (
	"context"
	"encoding/json"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/component"
	"github.com/yanizio/metastore/internal/metadata"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Service is the subset of *metadata.Service the handlers call.
type Service interface {
	Index(ctx context.Context, q metadata.IndexQuery) (*metadata.Page, error)
	Values(ctx context.Context, scope metadata.Scope) (map[string]any, error)
	Show(ctx context.Context, scope metadata.Scope, key string) (*metadata.View, error)
	Create(ctx context.Context, scope metadata.Scope, items metadata.Items) ([]metadata.View, error)
	Edit(ctx context.Context, scope metadata.Scope, key string, value json.RawMessage) (*metadata.View, error)
	Update(ctx context.Context, scope metadata.Scope, items metadata.Items) ([]metadata.View, error)
	Delete(ctx context.Context, scope metadata.Scope, key string) (int64, error)
}

var _ Service = (*metadata.Service)(nil)

// Component serves the metadata API.
type Component struct {
	svc Service
	log *zap.SugaredLogger
}

// New builds the component.  log may be nil.
func New(svc Service, log *zap.SugaredLogger) *Component {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Component{svc: svc, log: log}
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "metadata" }

// Routes builds the router mounted at `/v1.0/{tenant_id}/metadata`.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", c.index)
	r.Route("/{resource_type}/{resource_id}", func(r chi.Router) {
		r.Get("/", c.indexResource)
		r.Post("/", c.create)
		r.Put("/", c.update)
		r.Delete("/", c.deleteAll)

		r.Get("/{key}", c.show)
		r.Put("/{key}", c.edit)
		r.Delete("/{key}", c.deleteKey)
	})
	return r
}
