// internal/metadata/service.go
//
// Operation surface consumed by the HTTP component.
//
// Context
// -------
// Service owns no state of its own.  For each verb it resolves the scope,
// asks the Authorizer, brackets mutations with start and end (or error)
// audit events, calls the Store, and shapes entries into Views.  Values are
// opaque JSON text below this layer; Views carry them decoded.
//
// Addressing
// ----------
// One component serves both shapes of the API:
//
//   - per-resource: `(resource_type, resource_id)` fixed by the path, `key`
//     for single-item verbs;
//   - per-tenant aggregate: only the tenant is fixed, the rest are optional
//     filters.
//
// Both go through resolveIndex, which also decides whether the caller is
// asking for other projects' rows and needs `metadata:index:all_projects`.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/audit"
	"github.com/yanizio/metastore/internal/metrics"
	"github.com/yanizio/metastore/internal/policy"
)

// Policy action names.
const (
	ActionIndex            = "metadata:index"
	ActionIndexAllProjects = "metadata:index:all_projects"
	ActionCreate           = "metadata:create"
	ActionShow             = "metadata:show"
	ActionUpdate           = "metadata:update"
	ActionDelete           = "metadata:delete"
	ActionEdit             = "metadata:edit"
)

// Store is the persistence contract; *Repository satisfies it.
type Store interface {
	List(ctx context.Context, opt ListOptions) ([]Entry, *int, error)
	ListMap(ctx context.Context, opt ListOptions) (map[string][]byte, error)
	Get(ctx context.Context, scope Scope, key string) (*Entry, error)
	Create(ctx context.Context, scope Scope, items Items) ([]Entry, error)
	Edit(ctx context.Context, scope Scope, key string, value []byte) (*Entry, error)
	Update(ctx context.Context, scope Scope, items Items) ([]Entry, error)
	Delete(ctx context.Context, scope Scope, key string) (int64, error)
}

// Authorizer fails closed when ctx may not perform action on target.
type Authorizer interface {
	Authorize(ctx context.Context, action string, target policy.Target) error
}

var _ Store = (*Repository)(nil)

// Service is safe for concurrent use.
type Service struct {
	store  Store
	authz  Authorizer
	notify audit.Notifier
	log    *zap.SugaredLogger
}

// NewService wires a Service.  notify and log may be nil.
func NewService(store Store, authz Authorizer, notify audit.Notifier, log *zap.SugaredLogger) *Service {
	if store == nil || authz == nil {
		panic("metadata.NewService: store and authorizer are required")
	}
	if notify == nil {
		notify = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{store: store, authz: authz, notify: notify, log: log}
}

// IndexQuery carries both addressing modes.  TenantID is the project in
// the URL; everything else is optional.
type IndexQuery struct {
	TenantID     string
	ResourceType string
	ResourceID   string
	Key          string
	Value        string
	ProjectID    string // list another project's rows (privileged)
	AllProjects  bool   // drop the project filter (privileged)
	Marker       int
	Limit        int
}

// Page is one List result.  Next is nil on the last page.
type Page struct {
	Views []View
	Next  *int
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// Index lists live entries, most recently updated first.
func (s *Service) Index(ctx context.Context, q IndexQuery) (page *Page, err error) {
	defer s.observe("index", time.Now(), &err)

	opt, action, target, err := resolveIndex(q)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, action, target); err != nil {
		return nil, err
	}

	entries, next, err := s.store.List(ctx, opt)
	if err != nil {
		return nil, err
	}
	return &Page{Views: s.views(entries), Next: next}, nil
}

// Values returns every live key of one resource decoded into a map.  Other
// resource views embed it.
func (s *Service) Values(ctx context.Context, scope Scope) (out map[string]any, err error) {
	defer s.observe("values", time.Now(), &err)

	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, ActionIndex, policy.Target{ProjectID: scope.ProjectID}); err != nil {
		return nil, err
	}

	raw, err := s.store.ListMap(ctx, ListOptions{
		ProjectID:    scope.ProjectID,
		ResourceType: scope.ResourceType,
		ResourceID:   scope.ResourceID,
	})
	if err != nil {
		return nil, err
	}
	out = make(map[string]any, len(raw))
	for k, v := range raw {
		var dv any
		if err := json.Unmarshal(v, &dv); err != nil {
			s.log.Warnw("undecodable metadata value", "key", k, "err", err)
			dv = string(v)
		}
		out[k] = dv
	}
	return out, nil
}

// Show returns one live key.
func (s *Service) Show(ctx context.Context, scope Scope, key string) (view *View, err error) {
	defer s.observe("show", time.Now(), &err)

	if err := checkKey(scope, key); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, ActionShow, policy.Target{ProjectID: scope.ProjectID}); err != nil {
		return nil, err
	}

	e, err := s.store.Get(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	v := s.view(*e)
	return &v, nil
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// Create adds every item, stopping at the first live duplicate.  Views of
// the rows committed before a failure are returned with the error.
func (s *Service) Create(ctx context.Context, scope Scope, items Items) (views []View, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := checkItems(scope, items); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, ActionCreate, policy.Target{ProjectID: scope.ProjectID}); err != nil {
		return nil, err
	}

	var entries []Entry
	err = s.mutate(ctx, "metadata.create", scope, map[string]any{"metadata": items}, func() error {
		var err error
		entries, err = s.store.Create(ctx, scope, items)
		return err
	})
	return s.views(entries), err
}

// Edit upserts one key.
func (s *Service) Edit(ctx context.Context, scope Scope, key string, value json.RawMessage) (view *View, err error) {
	defer s.observe("edit", time.Now(), &err)

	if err := checkKey(scope, key); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, ActionEdit, policy.Target{ProjectID: scope.ProjectID}); err != nil {
		return nil, err
	}

	var e *Entry
	params := map[string]any{"key": key, "value": value}
	err = s.mutate(ctx, "metadata.edit", scope, params, func() error {
		var err error
		e, err = s.store.Edit(ctx, scope, key, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	v := s.view(*e)
	return &v, nil
}

// Update upserts every item independently.  It is not atomic; the views
// applied before a failure come back with the error.
func (s *Service) Update(ctx context.Context, scope Scope, items Items) (views []View, err error) {
	defer s.observe("update", time.Now(), &err)

	if err := checkItems(scope, items); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, ActionUpdate, policy.Target{ProjectID: scope.ProjectID}); err != nil {
		return nil, err
	}

	var entries []Entry
	err = s.mutate(ctx, "metadata.update", scope, map[string]any{"metadata": items}, func() error {
		var err error
		entries, err = s.store.Update(ctx, scope, items)
		return err
	})
	if err != nil && len(entries) > 0 {
		s.log.Warnw("metadata update partially applied",
			"project_id", scope.ProjectID,
			"resource_type", scope.ResourceType,
			"resource_id", scope.ResourceID,
			"applied", len(entries),
			"requested", len(items))
	}
	return s.views(entries), err
}

// Delete soft-deletes key, or every key of the resource when key is
// empty.  Deleting nothing is not an error.
func (s *Service) Delete(ctx context.Context, scope Scope, key string) (n int64, err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := checkScope(scope); err != nil {
		return 0, err
	}
	if err := s.authz.Authorize(ctx, ActionDelete, policy.Target{ProjectID: scope.ProjectID}); err != nil {
		return 0, err
	}

	params := map[string]any{}
	if key != "" {
		params["key"] = key
	}
	err = s.mutate(ctx, "metadata.delete", scope, params, func() error {
		var err error
		n, err = s.store.Delete(ctx, scope, key)
		return err
	})
	return n, err
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

// mutate brackets fn with audit events and a log line.
func (s *Service) mutate(ctx context.Context, event string, scope Scope, params map[string]any, fn func() error) error {
	params["resource_type"] = scope.ResourceType
	params["resource_id"] = scope.ResourceID

	ev := audit.Event{EventType: event, ProjectID: scope.ProjectID, Params: params}
	ev.Phase = audit.PhaseStart
	s.notify.Notify(ctx, ev)

	err := fn()
	if err != nil {
		ev.Phase, ev.Error = audit.PhaseError, err.Error()
		s.notify.Notify(ctx, ev)
		s.log.Errorw(event+" failed",
			"project_id", scope.ProjectID,
			"resource_type", scope.ResourceType,
			"resource_id", scope.ResourceID,
			"err", err)
		return err
	}

	ev.Phase = audit.PhaseEnd
	s.notify.Notify(ctx, ev)
	s.log.Infow(event,
		"project_id", scope.ProjectID,
		"resource_type", scope.ResourceType,
		"resource_id", scope.ResourceID)
	return nil
}

func (s *Service) observe(op string, started time.Time, err *error) {
	metrics.ObserveOperation(op, Result(*err), started)
}

func (s *Service) views(entries []Entry) []View {
	out := make([]View, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.view(e))
	}
	return out
}

func (s *Service) view(e Entry) View {
	v, err := e.Decode()
	if err != nil {
		s.log.Warnw("undecodable metadata value", "id", e.ID, "err", err)
		v = e.Value
	}
	return View{
		ID:           e.ID,
		ProjectID:    e.ProjectID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Key:          e.Key,
		Value:        v,
		Created:      e.Created,
		Updated:      e.Updated,
	}
}

// resolveIndex turns either addressing mode into ListOptions plus the
// policy action and target to check.
func resolveIndex(q IndexQuery) (ListOptions, string, policy.Target, error) {
	if q.TenantID == "" {
		return ListOptions{}, "", policy.Target{}, invalid("tenant is required")
	}
	if q.Marker < 0 {
		return ListOptions{}, "", policy.Target{}, invalid("marker %d is negative", q.Marker)
	}
	if q.Limit < 0 {
		return ListOptions{}, "", policy.Target{}, invalid("limit %d is negative", q.Limit)
	}

	opt := ListOptions{
		ProjectID:    q.TenantID,
		ResourceType: q.ResourceType,
		ResourceID:   q.ResourceID,
		Key:          q.Key,
		Value:        encodeFilter(q.Value),
		Marker:       q.Marker,
		Limit:        q.Limit,
	}
	action, target := ActionIndex, policy.Target{ProjectID: q.TenantID}

	switch {
	case q.AllProjects:
		opt.AllProjects = true
		action = ActionIndexAllProjects
	case q.ProjectID != "" && q.ProjectID != q.TenantID:
		opt.ProjectID = q.ProjectID
		action = ActionIndexAllProjects
		target.ProjectID = q.ProjectID
	}
	return opt, action, target, nil
}

// encodeFilter maps a query-string value onto the stored JSON text: valid
// JSON is compacted, anything else is treated as a JSON string.
func encodeFilter(v string) string {
	if v == "" {
		return ""
	}
	var dv any
	if err := json.Unmarshal([]byte(v), &dv); err == nil {
		b, _ := json.Marshal(dv)
		return string(b)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func checkScope(scope Scope) error {
	if err := validate.Struct(scope); err != nil {
		return invalid("scope: %v", err)
	}
	return nil
}

func checkKey(scope Scope, key string) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	if key == "" || len([]rune(key)) > MaxKeyLength {
		return invalid("key must be 1 to %d characters", MaxKeyLength)
	}
	return nil
}

func checkItems(scope Scope, items Items) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	if len(items) == 0 {
		return invalid("metadata must contain at least one key")
	}
	for _, it := range items {
		if it.Key == "" {
			return invalid("metadata keys must not be empty")
		}
	}
	return nil
}

// Result classifies err for metrics and transport mapping.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrCreation):
		return "invalid"
	case errors.Is(err, policy.ErrForbidden), errors.Is(err, policy.ErrUnauthenticated):
		return "forbidden"
	default:
		return "error"
	}
}
