// internal/component/registry.go
//
// Component contract and mounting.
//
// Each concrete component lives under components/<name> and exposes its
// routes as a chi.Router.  cmd/metastore builds the components with their
// dependencies and calls Mount once at start-up; there is no global
// registry, so tests can mount a component on its own.

package component

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Component contract.
//
// Routes() returns a router relative to the mount prefix, e.g.
//
//	r := chi.NewRouter()
//	r.Get("/", c.index)
//	r.Route("/{id}", func(r chi.Router) { ... })
//	return r
type Component interface {
	Name() string
	Routes() chi.Router
}

// Mount attaches every component under prefix on r.
func Mount(r chi.Router, prefix string, cs ...Component) {
	for _, c := range cs {
		r.Mount(prefix, c.Routes())
		zap.S().Debugw("component mounted", "component", c.Name(), "prefix", prefix)
	}
}
