// internal/server/server.go
//
// HTTP server helper with configured timeouts and graceful shutdown.
//
// Context
// -------
// Production hardening wants three limits on every listener:
//
//   - ReadTimeout   aborts slow-loris headers and bodies
//   - WriteTimeout  caps total response time
//   - IdleTimeout   closes idle keep-alives
//
// Run serves until ctx is cancelled, then gives in-flight requests
// ShutdownTimeout to finish.  An errgroup ties the listener and the
// shutdown watcher together so either failing ends both.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Timeouts bundles the server limits.  Zero fields fall back to the
// defaults below.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Read == 0 {
		t.Read = 10 * time.Second
	}
	if t.Write == 0 {
		t.Write = 15 * time.Second
	}
	if t.Idle == 0 {
		t.Idle = 60 * time.Second
	}
	if t.Shutdown == 0 {
		t.Shutdown = 15 * time.Second
	}
	return t
}

// New constructs an *http.Server with t applied.
func New(addr string, handler http.Handler, t Timeouts) *http.Server {
	t = t.withDefaults()
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       t.Read,
		ReadHeaderTimeout: t.Read,
		WriteTimeout:      t.Write,
		IdleTimeout:       t.Idle,
	}
}

// Run serves srv until ctx is done, then shuts it down within
// t.Shutdown.  It returns nil on a clean shutdown.
func Run(ctx context.Context, srv *http.Server, t Timeouts) error {
	t = t.withDefaults()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.S().Infow("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), t.Shutdown)
		defer cancel()
		zap.S().Infow("http shutting down", "grace", t.Shutdown)
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
