// Package app wires the server together: storage, seed import, the
// dispatcher and its collaborators, the websocket transport and the
// background workers.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"originchats/internal/retention"
	"originchats/pkg/auth"
	"originchats/pkg/config"
	"originchats/pkg/logger"
	"originchats/pkg/plugin"
	"originchats/pkg/protocol"
	"originchats/pkg/ratelimit"
	"originchats/pkg/server"
	"originchats/pkg/store"
	"originchats/pkg/watcher"
)

// App owns every long-lived component of the server process.
type App struct {
	cfg        *config.Config
	store      *store.Store
	hub        *server.Hub
	dispatcher *protocol.Dispatcher
	limiter    *ratelimit.Limiter
	plugins    *plugin.Registry
	authsvc    *auth.Service
	srv        *http.Server
}

// New builds the application from configuration: opens the store, imports
// seed data, constructs the dispatcher stack and registers the built-in
// plugins.
func New(cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.ImportSeedDir(cfg.Server.DataDir); err != nil {
		st.Close()
		return nil, fmt.Errorf("import seed data: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
		BurstLimit:        cfg.RateLimit.BurstLimit,
		Cooldown:          cfg.RateLimit.Cooldown.Duration(),
	})

	registry := plugin.NewRegistry()
	for _, f := range plugin.DefaultFactories() {
		if err := registry.Register(f); err != nil {
			st.Close()
			return nil, fmt.Errorf("register plugin: %w", err)
		}
	}

	hub := server.NewHub()
	dispatcher := protocol.New(st, limiter, registry, hub, protocol.Limits{
		MaxContent:     cfg.Limits.PostContent,
		FetchDefault:   cfg.Limits.FetchDefault,
		RepliesDefault: cfg.Limits.RepliesDefault,
	})

	registry.SetHost(&plugin.HostContext{
		Broadcast: func(v any) {
			packet, err := json.Marshal(v)
			if err != nil {
				logger.Error("plugin_broadcast_encode_failed", "error", err)
				return
			}
			hub.Broadcast(packet)
		},
		Online: hub.Online,
	})

	validator := auth.NewHTTPValidator(cfg.Auth.ValidateURL, cfg.Auth.ValidateKey)
	authsvc := auth.NewService(validator, st, cfg.Auth.DefaultRoles, cfg.Auth.AttemptsPerSecond, cfg.Auth.AttemptsBurst)

	return &App{
		cfg:        cfg,
		store:      st,
		hub:        hub,
		dispatcher: dispatcher,
		limiter:    limiter,
		plugins:    registry,
		authsvc:    authsvc,
	}, nil
}

// Run starts the hub, the HTTP listener and the background workers, then
// blocks until ctx is cancelled and shutdown completes.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run(ctx)

	stopRetention, err := retention.Start(ctx, a.cfg.Retention, a.store)
	if err != nil {
		return err
	}
	defer stopRetention()

	w := watcher.New(a.cfg.Server.DataDir, a.store, a.hub, json.Marshal)
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watcher_stopped", "error", err)
		}
	}()

	router := server.Router(a.hub, a.dispatcher, a.authsvc, a.plugins)
	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", a.cfg.Addr())
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", "error", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("store_close_error", "error", err)
	}
	logger.Info("server_stopped")
	return nil
}
