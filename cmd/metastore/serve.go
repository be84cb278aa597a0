package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/metastore/components/health"
	metadataapi "github.com/yanizio/metastore/components/metadata"
	"github.com/yanizio/metastore/internal/audit"
	"github.com/yanizio/metastore/internal/component"
	"github.com/yanizio/metastore/internal/config"
	"github.com/yanizio/metastore/internal/database"
	"github.com/yanizio/metastore/internal/metadata"
	"github.com/yanizio/metastore/internal/middleware"
	"github.com/yanizio/metastore/internal/policy"
	"github.com/yanizio/metastore/internal/requestinfo"
	"github.com/yanizio/metastore/internal/server"
)

func serveCommand(flags *rootFlags) *cli.Command {
	return &cli.Command{
		Use:     "serve",
		Short:   "Run the metadata HTTP API",
		Example: "metastore serve --root /usr/local/etc/metastore",
		Args:    cli.NoArgs,
		RunE: func(c *cli.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

// serve boots the process:
//
//  1. config + file logger
//  2. optional GeoIP database for audit enrichment
//  3. metadata store (pool, ping, optional migrate)
//  4. audit dispatcher, policy enforcer, Service
//  5. router + server until ctx is cancelled
func serve(ctx context.Context, flags *rootFlags) error {
	cfg, log, err := bootstrap(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := requestinfo.InitGeo(cfg.Audit.GeoIPDB); err != nil {
		log.Warnw("geoip disabled", "path", cfg.Audit.GeoIPDB, "err", err)
	}

	dbc := cfg.Database
	if dbc.MigrateOnStart {
		if err := database.Up(dbc.Driver, dbc.DSN, dbc.Password); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Infow("migrations applied", "driver", dbc.Driver)
	}

	db, err := database.OpenWithOptions(ctx, dbc.Driver, dbc.DSN, database.Options{
		MaxOpenConns:    dbc.MaxOpenConns,
		MaxIdleConns:    dbc.MaxIdleConns,
		ConnMaxLifetime: dbc.ConnMaxLifetime,
		Retries:         dbc.ConnectRetries,
		RetryBackoff:    database.DefaultOptions().RetryBackoff,
		Password:        dbc.Password,
	})
	if err != nil {
		return fmt.Errorf("connect metadata store: %w", err)
	}
	defer db.Close()
	log.Infow("metadata store online", "driver", dbc.Driver)

	dispatcher := audit.NewDispatcher(audit.LogSink{Log: log.Desugar().Named("audit")}, cfg.Audit.Buffer, log)
	defer dispatcher.Close()

	repo := metadata.NewRepository(db, metadata.Options{
		PageSize:    cfg.Metadata.PageSize,
		MaxPageSize: cfg.Metadata.MaxPageSize,
	})
	svc := metadata.NewService(repo, policy.NewEnforcer(cfg.Policy), dispatcher, log)

	t := server.Timeouts{
		Read:     cfg.HTTP.ReadTimeout,
		Write:    cfg.HTTP.WriteTimeout,
		Idle:     cfg.HTTP.IdleTimeout,
		Shutdown: cfg.HTTP.ShutdownTimeout,
	}
	srv := server.New(cfg.HTTP.ListenAddr, newRouter(cfg, db, svc, log), t)
	return server.Run(ctx, srv, t)
}

// newRouter assembles the middleware chain and mounts the components.
func newRouter(cfg *config.Config, db *sqlx.DB, svc *metadata.Service, log *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.Security)
	if len(cfg.HTTP.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.HTTP.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.HeaderProjectID, middleware.HeaderUserID, middleware.HeaderRoles},
			MaxAge:         300,
		}))
	}

	r.Handle("/metrics", promhttp.Handler())
	component.Mount(r, "/", health.New(db, 0))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(requestinfo.Enrich)
		component.Mount(r, "/v1.0/{tenant_id}/metadata", metadataapi.New(svc, log))
	})

	return middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS, r)
}
