// components/metadata/request.go
//
// Request decoding for the metadata API.
//
// Context
// -------
// Every write body is `{"metadata": {...}}` read through a size-limited
// decoder; path segments become a metadata.Scope and the query string an
// IndexQuery.  Failures are *requestError values that carry their own
// status, so the handlers hand them straight to fail.
//
// Notes
// -----
//   - Keys are free-form, so path segments are decoded exactly once.
//   - marker and limit must be non-negative integers.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/yanizio/metastore/internal/metadata"
)

// maxBodyBytes bounds request bodies.  A full page of maximum-size items
// fits comfortably.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// requestError is a transport-level rejection with its own status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// metadataBody is the shape of every write request.
type metadataBody struct {
	Metadata metadata.Items `json:"metadata" validate:"required,min=1"`
}

// value returns the encoded value of key.
func (b metadataBody) value(key string) (json.RawMessage, bool) {
	for _, it := range b.Metadata {
		if it.Key == key {
			return it.Value, true
		}
	}
	return nil, false
}

func decodeBody(w http.ResponseWriter, r *http.Request) (*metadataBody, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body metadataBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return nil, badRequest("malformed request body: %v", err)
	}
	if err := validate.Struct(body); err != nil {
		return nil, badRequest("metadata must be a non-empty object")
	}
	for _, it := range body.Metadata {
		if it.Key == "" {
			return nil, badRequest("metadata keys must not be empty")
		}
	}
	return &body, nil
}

// pathParam returns the decoded chi URL parameter.  chi routes on
// r.URL.RawPath when it is set and on the already decoded r.URL.Path
// otherwise, so only the first case needs unescaping.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	dv, err := url.PathUnescape(v)
	if err != nil {
		return "", badRequest("bad %s in path", name)
	}
	return dv, nil
}

func scopeOf(r *http.Request) (metadata.Scope, error) {
	var (
		s   metadata.Scope
		err error
	)
	if s.ProjectID, err = pathParam(r, "tenant_id"); err != nil {
		return s, err
	}
	if s.ResourceType, err = pathParam(r, "resource_type"); err != nil {
		return s, err
	}
	if s.ResourceID, err = pathParam(r, "resource_id"); err != nil {
		return s, err
	}
	return s, nil
}

func keyScopeOf(r *http.Request) (metadata.Scope, string, error) {
	s, err := scopeOf(r)
	if err != nil {
		return s, "", err
	}
	key, err := pathParam(r, "key")
	return s, key, err
}

// indexQuery reads the tenant from the path and filters from the query
// string.
func indexQuery(r *http.Request) (metadata.IndexQuery, error) {
	tenant, err := pathParam(r, "tenant_id")
	if err != nil {
		return metadata.IndexQuery{}, err
	}
	qs := r.URL.Query()
	q := metadata.IndexQuery{
		TenantID:     tenant,
		ResourceType: qs.Get("resource_type"),
		ResourceID:   qs.Get("resource_id"),
		Key:          qs.Get("key"),
		Value:        qs.Get("value"),
		ProjectID:    qs.Get("project_id"),
	}

	if q.AllProjects, err = boolParam(qs, "all_projects"); err != nil {
		return q, err
	}
	if q.Marker, err = intParam(qs, "marker"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(qs, "limit"); err != nil {
		return q, err
	}
	return q, nil
}

func boolParam(qs url.Values, name string) (bool, error) {
	v := qs.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest("%s must be a boolean", name)
	}
	return b, nil
}

func intParam(qs url.Values, name string) (int, error) {
	v := qs.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return n, nil
}
