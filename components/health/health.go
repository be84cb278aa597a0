// components/health/health.go
//
// Liveness and readiness probe.
//
// GET /healthz pings the metadata store with a short timeout and answers
// 200 {"status":"ok"} or 503 {"status":"unavailable"}.  It sits outside
// the identity middleware so load balancers can call it unauthenticated.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/component"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Pinger is satisfied by *sqlx.DB and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Component serves /healthz.
type Component struct {
	db      Pinger
	timeout time.Duration
}

// New builds the probe.  A zero timeout means two seconds.
func New(db Pinger, timeout time.Duration) *Component {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Component{db: db, timeout: timeout}
}

// Name returns the canonical component key.
func (c *Component) Name() string { return "health" }

// Routes builds the router mounted at “/”.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", c.healthz)
	return r
}

func (c *Component) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	code, state := http.StatusOK, "ok"
	if err := c.db.PingContext(ctx); err != nil {
		zap.S().Warnw("health check failed", "err", err)
		code, state = http.StatusServiceUnavailable, "unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": state})
}
