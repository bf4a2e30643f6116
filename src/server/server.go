// Package server is the composition root and HTTP boundary.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"membershare/src/auth"
	"membershare/src/identity"
	"membershare/src/lib"
	"membershare/src/notify"
	"membershare/src/services"
	"membershare/src/storage"
	"membershare/src/storage/postgres"
	"membershare/src/storage/sqlite"
)

// Server owns the store, background sweeper and HTTP listener.
type Server struct {
	cfg        lib.Config
	logger     *slog.Logger
	store      storage.Store
	sweeper    *services.ExpirySweeper
	httpServer *http.Server
	tracing    func(context.Context) error
}

func NewServer(ctx context.Context, cfg lib.Config) (*Server, error) {
	logger := lib.NewLogger(cfg.LogLevel)
	metrics := lib.NewMetrics()

	shutdownTracing, err := lib.SetupTracing(ctx, cfg, "membershare")
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	sessions := auth.NewSessions(cfg.JWTSecret, cfg.SessionTTL())
	invitations := services.NewInvitationService(store, cfg.InvitationTTL(), cfg.TokenMaxAttempts, metrics)
	syncService := services.NewSyncService(store, metrics, logger)
	groups := services.NewGroupService(services.GroupDeps{
		Store:       store,
		Invitations: invitations,
		Sync:        syncService,
		Notifier:    newNotifier(cfg, logger),
		Identity:    identity.NewDirectory(store),
		Sessions:    sessions,
		Limiter:     services.NewInviteLimiter(cfg.InviteRateLimitBurst, cfg.InviteRateLimitPerMin),
		Metrics:     metrics,
		Logger:      logger,
	}, services.GroupSettings{
		SiteName:            cfg.SiteName,
		PublicBaseURL:       cfg.PublicBaseURL,
		GroupLabel:          cfg.Labels.Group,
		DeclineReleasesSeat: cfg.DeclineReleasesSeat,
	})

	handler := NewRouter(&API{
		Groups:         groups,
		Sync:           syncService,
		Invitations:    invitations,
		Webhooks:       services.NewWebhookIngestService(store, groups, syncService, metrics),
		Verifier:       services.NewWebhookVerifier(cfg.WebhookSecret, cfg.MaxEventSkew()),
		Sessions:       sessions,
		Metrics:        metrics,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	return &Server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		sweeper: services.NewExpirySweeper(invitations, cfg.SweepInterval, logger),
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		tracing: shutdownTracing,
	}, nil
}

// OpenStore opens the configured backend and applies its migrations.
func OpenStore(ctx context.Context, cfg lib.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case lib.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case lib.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func newNotifier(cfg lib.Config, logger *slog.Logger) services.Notifier {
	content := notify.NewTemplateBuilder(cfg.SiteName, cfg.Labels.Group)
	if cfg.SMTPAddr == "" {
		logger.Warn("SMTP_ADDR not set, invitation emails will only be logged")
		return notify.NewLogNotifier(logger, content)
	}
	return notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, content)
}

// Start runs the expiry sweeper and blocks serving HTTP.
func (s *Server) Start(ctx context.Context) error {
	s.sweeper.Start(ctx)
	s.logger.Info("membershare server starting", "addr", s.cfg.HTTPAddr, "store", s.cfg.StoreDriver)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.sweeper.Stop()
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if terr := s.tracing(ctx); terr != nil && err == nil {
		err = terr
	}
	return err
}
