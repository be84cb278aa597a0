// internal/metadata/model.go
//
// `metadata` table row model.
//
// Context
// -------
// One row holds one key of one resource.  Rows are never removed by normal
// operation; Delete flips `deleted` and stamps `deleted_at`, and every read
// filters on `deleted = 0`.  Live-row uniqueness per (project, type,
// resource, key) is enforced by the store through the generated `live`
// column (see internal/database/migrations).
//
// Schema reference
//
//	CREATE TABLE metadata (
//	    id            CHAR(36)     PRIMARY KEY,
//	    project_id    VARCHAR(64)  NOT NULL,
//	    resource_type VARCHAR(255) NOT NULL,
//	    resource_id   VARCHAR(255) NOT NULL,
//	    `key`         VARCHAR(255) NOT NULL,
//	    value         VARCHAR(255) NOT NULL,   -- JSON text
//	    created       DATETIME(6)  NOT NULL,
//	    updated       DATETIME(6)  NOT NULL,
//	    deleted_at    DATETIME(6)  NULL,
//	    deleted       TINYINT(1)   NOT NULL DEFAULT 0,
//	    live          TINYINT(1)   AS (CASE WHEN deleted = 0 THEN 1 END)
//	);
package metadata

import (
	"encoding/json"
	"time"
)

// Length limits shared by validation and the schema.
const (
	MaxKeyLength   = 255
	MaxValueLength = 255
)

// Entry mirrors one row in the `metadata` table.  Value is the stored JSON
// text; callers decode it with Decode.
type Entry struct {
	ID           string     `db:"id"`
	ProjectID    string     `db:"project_id"`
	ResourceType string     `db:"resource_type"`
	ResourceID   string     `db:"resource_id"`
	Key          string     `db:"key"`
	Value        string     `db:"value"`
	Created      time.Time  `db:"created"`
	Updated      time.Time  `db:"updated"`
	Deleted      bool       `db:"deleted"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

// Decode unmarshals the stored JSON value.
func (e *Entry) Decode() (any, error) {
	var v any
	if err := json.Unmarshal([]byte(e.Value), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Scope groups the keys of one resource.
type Scope struct {
	ProjectID    string `validate:"required,max=64"`
	ResourceType string `validate:"required,max=255"`
	ResourceID   string `validate:"required,max=255"`
}

// ListOptions narrows List and ListMap.  Empty strings mean "no filter".
// ProjectID is ignored when AllProjects is set.
type ListOptions struct {
	ProjectID    string
	ResourceType string
	ResourceID   string
	Key          string
	Value        string
	AllProjects  bool

	// Offset pagination.  Marker is a row offset; Limit <= 0 selects the
	// configured page size.
	Marker int
	Limit  int
}
