// components/metadata/response.go
//
// Response shapes and error mapping for the metadata API.
//
// Context
// -------
// Lists are `{"metadatas": [...], "links": [...]}`, single entries
// `{"metadata": {...}}`, resource maps `{"metadata": {"<key>": value}}`,
// and every failure `{"error": {"code": n, "message": "..."}}`.
//
// Notes
// -----
//   - A bulk create that stopped part-way lists the keys it did commit in
//     `error.committed`; those rows stay live.
//   - 5xx messages are replaced by the status text; the cause is logged.
package metadata

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/metadata"
	"github.com/yanizio/metastore/internal/policy"
)

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type listResponse struct {
	Metadatas []metadata.View `json:"metadatas"`
	Links     []link          `json:"links,omitempty"`
}

type itemResponse struct {
	Metadata metadata.View `json:"metadata"`
}

type resourceResponse struct {
	Metadata map[string]any `json:"metadata"`
}

type errorBody struct {
	Error struct {
		Code      int      `json:"code"`
		Message   string   `json:"message"`
		Committed []string `json:"committed,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("response encode failed", "err", err)
	}
}

func nonNil(v []metadata.View) []metadata.View {
	if v == nil {
		return []metadata.View{}
	}
	return v
}

// nextLinks returns the `next` link for a page, or nil on the last page.
// The href repeats the request with marker advanced.
func nextLinks(r *http.Request, next *int, limit int) []link {
	if next == nil {
		return nil
	}
	q := r.URL.Query()
	q.Set("marker", strconv.Itoa(*next))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	href := scheme + "://" + r.Host + r.URL.EscapedPath() + "?" + q.Encode()
	return []link{{Rel: "next", Href: href}}
}

// status maps an error onto an HTTP status code.
func status(err error) int {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status
	case errors.Is(err, metadata.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, metadata.ErrCreation), errors.Is(err, metadata.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, policy.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, policy.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error.  Server faults are logged and their
// detail withheld from the caller.
func (c *Component) fail(w http.ResponseWriter, r *http.Request, err error) {
	c.failCommitted(w, r, err, nil)
}

// failCommitted is fail for bulk writes that applied some keys before err.
func (c *Component) failCommitted(w http.ResponseWriter, r *http.Request, err error, committed []metadata.View) {
	code := status(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		c.log.Desugar().Error("metadata request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = http.StatusText(code)
	}

	var body errorBody
	body.Error.Code, body.Error.Message = code, msg
	for _, v := range committed {
		body.Error.Committed = append(body.Error.Committed, v.Key)
	}
	writeJSON(w, code, body)
}
