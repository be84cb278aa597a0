// internal/metadata/repository.go
//
// Query and mutation layer over the `metadata` table.
//
// Context
// -------
// Repository is the only code that writes SQL for metadata.  It knows
// nothing about callers, policies, or notifications; the Service wraps it
// for that.  Every statement is a single parameterised query so the store's
// per-statement atomicity is the only transactional guarantee relied on.
//
// Workflow
// --------
//  1. Reads filter `deleted = 0` and match the scope columns exactly.
//  2. Create and Edit look the key up first for a friendly error, then
//     insert.  The `uq_metadata_live_key` index is the real arbiter; an
//     insert that trips it is mapped to KeyExistsError (Create) or retried
//     as an update (Edit).
//  3. Delete is an UPDATE that stamps `deleted`, `deleted_at`, `updated`.
//  4. Bulk Create and Update are NOT atomic.  They return what they
//     committed alongside the first error.
//
// Notes
// -----
//   - Pagination is offset based, ordered by `updated DESC, created DESC,
//     id`.  Concurrent writes can shift rows between pages.
//   - Column list matches the fields in `Entry`; update both together.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/metastore/internal/database"
)

// Default page sizes, used when Options leave them zero.
const (
	DefaultPageSize    = 20
	DefaultMaxPageSize = 1000
)

const selectColumns = "SELECT id, project_id, resource_type, resource_id, `key`, value, " +
	"created, updated, deleted, deleted_at FROM metadata"

const (
	qGet = selectColumns + `
        WHERE  deleted = 0
          AND  project_id = ?
          AND  resource_type = ?
          AND  resource_id = ?
          AND  ` + "`key`" + ` = ?
        LIMIT  1`

	qInsert = `
        INSERT INTO metadata
               (id, project_id, resource_type, resource_id, ` + "`key`" + `, value,
                created, updated, deleted, deleted_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`

	qUpdateValue = `
        UPDATE metadata
           SET value = ?, updated = ?
         WHERE id = ? AND deleted = 0`

	qSoftDelete = `
        UPDATE metadata
           SET deleted = 1, deleted_at = ?, updated = ?
         WHERE deleted = 0 AND project_id = ? AND resource_type = ? AND resource_id = ?`

	orderRecentFirst = " ORDER BY updated DESC, created DESC, id ASC"
	orderOldestFirst = " ORDER BY updated ASC, created ASC, id ASC"
)

// Options tunes a Repository.  Zero values pick defaults.
type Options struct {
	PageSize    int
	MaxPageSize int
	Now         func() time.Time
	NewID       func() string
}

// Repository implements list/get/create/edit/update/delete over one
// *sqlx.DB.  It is safe for concurrent use.
type Repository struct {
	db          *sqlx.DB
	pageSize    int
	maxPageSize int
	now         func() time.Time
	newID       func() string
}

// NewRepository binds a Repository to db.
func NewRepository(db *sqlx.DB, opt Options) *Repository {
	r := &Repository{
		db:          db,
		pageSize:    opt.PageSize,
		maxPageSize: opt.MaxPageSize,
		now:         opt.Now,
		newID:       opt.NewID,
	}
	if r.maxPageSize <= 0 {
		r.maxPageSize = DefaultMaxPageSize
	}
	if r.pageSize <= 0 {
		r.pageSize = DefaultPageSize
	}
	if r.pageSize > r.maxPageSize {
		r.pageSize = r.maxPageSize
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.newID == nil {
		r.newID = func() string { return uuid.NewString() }
	}
	return r
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// List returns one page of live entries, most recently updated first.  next
// is Marker+Limit when the page came back full and nil when it was short.
func (r *Repository) List(ctx context.Context, opt ListOptions) (entries []Entry, next *int, err error) {
	if opt.Marker < 0 {
		return nil, nil, invalid("marker %d is negative", opt.Marker)
	}
	limit := r.limit(opt.Limit)

	where, args := listFilters(opt)
	q := selectColumns + where + orderRecentFirst + " LIMIT ? OFFSET ?"
	args = append(args, limit, opt.Marker)

	entries = make([]Entry, 0, limit)
	if err := r.db.SelectContext(ctx, &entries, q, args...); err != nil {
		return nil, nil, fmt.Errorf("list metadata: %w", err)
	}
	if len(entries) < limit {
		return entries, nil, nil
	}
	n := opt.Marker + limit
	return entries, &n, nil
}

// ListMap returns key → stored JSON for every matching live entry, without
// pagination.  When several resources share a key the most recently updated
// value wins.
func (r *Repository) ListMap(ctx context.Context, opt ListOptions) (map[string][]byte, error) {
	where, args := listFilters(opt)
	q := selectColumns + where + orderOldestFirst

	var rows []Entry
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list metadata map: %w", err)
	}
	out := make(map[string][]byte, len(rows))
	for _, e := range rows {
		out[e.Key] = []byte(e.Value)
	}
	return out, nil
}

// Get returns the live entry for key in scope.
func (r *Repository) Get(ctx context.Context, scope Scope, key string) (*Entry, error) {
	var e Entry
	err := r.db.GetContext(ctx, &e, qGet, scope.ProjectID, scope.ResourceType, scope.ResourceID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &KeyNotFoundError{Key: key, ResourceType: scope.ResourceType, ResourceID: scope.ResourceID}
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata %q: %w", key, err)
	}
	return &e, nil
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// Create inserts every item in order.  It stops at the first key that is
// already live and returns the entries inserted before it together with a
// *KeyExistsError.  Those earlier rows stay committed.
func (r *Repository) Create(ctx context.Context, scope Scope, items Items) ([]Entry, error) {
	created := make([]Entry, 0, len(items))
	for _, it := range items {
		_, err := r.Get(ctx, scope, it.Key)
		switch {
		case err == nil:
			return created, r.exists(scope, it.Key)
		case !errors.Is(err, ErrNotFound):
			return created, err
		}

		e, err := r.insert(ctx, scope, it)
		if err != nil {
			return created, err
		}
		created = append(created, *e)
	}
	return created, nil
}

// Edit updates the live entry for key or inserts one.  It never reports
// not-found.
func (r *Repository) Edit(ctx context.Context, scope Scope, key string, value []byte) (*Entry, error) {
	it := Item{Key: key, Value: value}

	// A second pass covers a concurrent writer: our insert lost to a fresh
	// live row, or the row we meant to update was deleted under us.
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := r.Get(ctx, scope, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		if cur != nil {
			e, err := r.update(ctx, cur, it)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return e, err
		}

		e, err := r.insert(ctx, scope, it)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		return e, err
	}
	return nil, fmt.Errorf("edit metadata %q: concurrent modification", key)
}

// Update upserts every item through Edit.  It is not atomic: on error the
// entries already applied are returned with it.
func (r *Repository) Update(ctx context.Context, scope Scope, items Items) ([]Entry, error) {
	applied := make([]Entry, 0, len(items))
	for _, it := range items {
		e, err := r.Edit(ctx, scope, it.Key, it.Value)
		if err != nil {
			return applied, err
		}
		applied = append(applied, *e)
	}
	return applied, nil
}

// Delete soft-deletes key in scope, or every live key of the scope when key
// is empty.  Missing or already-deleted keys affect zero rows.
func (r *Repository) Delete(ctx context.Context, scope Scope, key string) (int64, error) {
	now := r.now()
	q := qSoftDelete
	args := []any{now, now, scope.ProjectID, scope.ResourceType, scope.ResourceID}
	if key != "" {
		q += " AND `key` = ?"
		args = append(args, key)
	}

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete metadata: %w", err)
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func (r *Repository) insert(ctx context.Context, scope Scope, it Item) (*Entry, error) {
	if err := it.Validate(); err != nil {
		return nil, &CreationError{Key: it.Key, Err: err}
	}

	now := r.now()
	e := Entry{
		ID:           r.newID(),
		ProjectID:    scope.ProjectID,
		ResourceType: scope.ResourceType,
		ResourceID:   scope.ResourceID,
		Key:          it.Key,
		Value:        string(it.Value),
		Created:      now,
		Updated:      now,
	}
	_, err := r.db.ExecContext(ctx, qInsert,
		e.ID, e.ProjectID, e.ResourceType, e.ResourceID, e.Key, e.Value, e.Created, e.Updated)
	switch {
	case err == nil:
		return &e, nil
	case database.IsDuplicate(err):
		return nil, r.exists(scope, it.Key)
	case database.IsConstraint(err):
		return nil, &CreationError{Key: it.Key, Err: err}
	default:
		return nil, fmt.Errorf("insert metadata %q: %w", it.Key, err)
	}
}

func (r *Repository) update(ctx context.Context, cur *Entry, it Item) (*Entry, error) {
	if err := it.Validate(); err != nil {
		return nil, &CreationError{Key: it.Key, Err: err}
	}

	now := r.now()
	if now.Before(cur.Updated) {
		now = cur.Updated
	}
	res, err := r.db.ExecContext(ctx, qUpdateValue, string(it.Value), now, cur.ID)
	if err != nil {
		if database.IsConstraint(err) {
			return nil, &CreationError{Key: it.Key, Err: err}
		}
		return nil, fmt.Errorf("update metadata %q: %w", it.Key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Deleted between the lookup and the update.
		return nil, &KeyNotFoundError{Key: it.Key, ResourceType: cur.ResourceType, ResourceID: cur.ResourceID}
	}

	e := *cur
	e.Value = string(it.Value)
	e.Updated = now
	return &e, nil
}

func (r *Repository) exists(scope Scope, key string) error {
	return &KeyExistsError{Key: key, ResourceType: scope.ResourceType, ResourceID: scope.ResourceID}
}

func (r *Repository) limit(n int) int {
	if n <= 0 {
		return r.pageSize
	}
	if n > r.maxPageSize {
		return r.maxPageSize
	}
	return n
}

// listFilters builds the WHERE clause shared by List and ListMap.
func listFilters(opt ListOptions) (string, []any) {
	conds := []string{"deleted = 0"}
	var args []any

	add := func(col, val string) {
		if val == "" {
			return
		}
		conds = append(conds, col+" = ?")
		args = append(args, val)
	}
	if !opt.AllProjects {
		conds = append(conds, "project_id = ?")
		args = append(args, opt.ProjectID)
	}
	add("resource_type", opt.ResourceType)
	add("resource_id", opt.ResourceID)
	add("`key`", opt.Key)
	add("value", opt.Value)

	return " WHERE " + strings.Join(conds, " AND "), args
}
