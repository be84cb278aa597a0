package metadata

import (
	"encoding/json"
	"time"
)

// View is the caller-facing shape of one entry, value decoded.
//
// It marshals flat: the reserved fields sit next to a member named after
// the key, e.g.
//
//	{"id": "...", "project_id": "p1", "resource_type": "server",
//	 "resource_id": "r1", "created": "...", "updated": "...", "color": "red"}
//
// A key that collides with a reserved field name is shadowed by it.
type View struct {
	ID           string
	ProjectID    string
	ResourceType string
	ResourceID   string
	Key          string
	Value        any
	Created      time.Time
	Updated      time.Time
}

var reservedFields = map[string]struct{}{
	"id": {}, "project_id": {}, "resource_type": {}, "resource_id": {},
	"created": {}, "updated": {},
}

// MarshalJSON implements json.Marshaler.
func (v View) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":            v.ID,
		"project_id":    v.ProjectID,
		"resource_type": v.ResourceType,
		"resource_id":   v.ResourceID,
		"created":       v.Created.UTC().Format(time.RFC3339Nano),
		"updated":       v.Updated.UTC().Format(time.RFC3339Nano),
	}
	if _, taken := reservedFields[v.Key]; !taken {
		out[v.Key] = v.Value
	}
	return json.Marshal(out)
}
