// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Command server runs the Gatehouse authorization gateway: it resolves an
// identity for every request, evaluates the configured permission rules,
// and exposes the administrative and observability surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/gatehouse/internal/api"
	"github.com/tomtom215/gatehouse/internal/audit"
	"github.com/tomtom215/gatehouse/internal/auth"
	"github.com/tomtom215/gatehouse/internal/authz"
	"github.com/tomtom215/gatehouse/internal/config"
	"github.com/tomtom215/gatehouse/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gatehouse: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config) error {
	// A process must refuse to start with ambiguous rules; there is no
	// degraded mode for authorization.
	snapshot, err := buildSnapshot(cfg)
	if err != nil {
		return fmt.Errorf("build rule snapshot: %w", err)
	}

	engine := authz.NewEngine(snapshot, &authz.Config{
		DenyUnannotatedEndpoints: cfg.DenyUnannotatedEndpoints,
		DenyUnannotatedMembers:   cfg.DenyUnannotatedMembers,
		CacheEnabled:             cfg.Authz.CacheEnabled,
		CacheTTL:                 cfg.Authz.CacheTTL,
	})
	defer engine.Close()

	logging.Info().
		Int("rules", snapshot.RuleCount()).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("proactive", cfg.Proactive).
		Msg("Authorization engine ready")

	authMW, err := buildAuthMiddleware(cfg)
	if err != nil {
		return fmt.Errorf("build authentication middleware: %w", err)
	}

	var store *audit.Store
	if cfg.Audit.StorePath != "" {
		store, err = audit.OpenStore(cfg.Audit.StorePath, cfg.Audit.Retention)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer store.Close()
	}

	recorder := audit.NewRecorder(&audit.Config{
		Enabled:    cfg.Audit.Enabled,
		LogAllowed: cfg.Audit.LogAllowed,
		LogDenied:  cfg.Audit.LogDenied,
		SampleRate: cfg.Audit.SampleRate,
		BufferSize: cfg.Audit.BufferSize,
	}, store)
	defer recorder.Close()

	guard := authz.NewMiddleware(engine, authMW, recorder)

	reload := func() (*authz.Snapshot, error) {
		fresh, err := config.Load()
		if err != nil {
			return nil, err
		}
		snap, err := buildSnapshot(fresh)
		if err != nil {
			return nil, err
		}
		engine.Install(snap)
		return snap, nil
	}

	handlers := api.NewHandlers(engine, reload, store, version)
	router := api.NewRouter(handlers, api.NewMiddleware(&api.MiddlewareConfig{
		CORSOrigins:       cfg.Security.CORSOrigins,
		RateLimitReqs:     cfg.Security.RateLimitReqs,
		RateLimitWindow:   cfg.Security.RateLimitWindow,
		RateLimitDisabled: cfg.Security.RateLimitDisabled,
	}), authMW, guard)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(mountEcho),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authMW.StartLimiterCleanup(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Str("version", version).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildSnapshot(cfg *config.Config) (*authz.Snapshot, error) {
	policies, rules := cfg.Definitions()
	return authz.BuildSnapshot(policies, rules)
}

func buildAuthMiddleware(cfg *config.Config) (*auth.Middleware, error) {
	mode, err := auth.ParseMode(cfg.Security.AuthMode)
	if err != nil {
		return nil, err
	}

	var (
		authenticator auth.Authenticator
		wwwAuth       string
	)

	switch mode {
	case auth.ModeNone:
		// Every request resolves to the anonymous identity.

	case auth.ModeBasic:
		basic, err := buildBasicAuthenticator(cfg)
		if err != nil {
			return nil, err
		}
		authenticator = basic
		wwwAuth = basic.WWWAuthenticate()

	case auth.ModeToken:
		token, err := auth.NewTokenAuthenticator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
		if err != nil {
			return nil, err
		}
		authenticator = token
		wwwAuth = `Bearer realm="` + cfg.Security.Realm + `"`

	case auth.ModeMulti:
		basic, err := buildBasicAuthenticator(cfg)
		if err != nil {
			return nil, err
		}
		token, err := auth.NewTokenAuthenticator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
		if err != nil {
			return nil, err
		}
		authenticator = auth.NewMultiAuthenticator(token, basic)
		wwwAuth = basic.WWWAuthenticate()
	}

	var limiter *auth.AttemptLimiter
	if cfg.Security.LockoutAttempts > 0 {
		interval := cfg.Security.LockoutWindow / time.Duration(cfg.Security.LockoutAttempts)
		limiter = auth.NewAttemptLimiter(interval, cfg.Security.LockoutAttempts)
	}

	return auth.NewMiddleware(&auth.MiddlewareConfig{
		Mode:            mode,
		Authenticator:   authenticator,
		Proactive:       cfg.Proactive,
		Limiter:         limiter,
		WWWAuthenticate: wwwAuth,
		TrustedProxies:  cfg.Security.TrustedProxies,
	})
}

func buildBasicAuthenticator(cfg *config.Config) (*auth.BasicAuthenticator, error) {
	basic := auth.NewBasicAuthenticator(cfg.Security.Realm)
	for name, spec := range cfg.Security.Users {
		if err := basic.AddUserHash(name, []byte(spec.PasswordHash), spec.RoleList()...); err != nil {
			return nil, fmt.Errorf("configure user %q: %w", name, err)
		}
	}
	return basic, nil
}

// mountEcho registers the guarded catch-all. Requests that clear the rule
// engine get a small reflection of what the gateway resolved for them,
// which makes rule behavior observable end to end.
func mountEcho(r chi.Router) {
	r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
		id := auth.IdentityFromContext(req.Context())

		resp := map[string]any{
			"path":   req.URL.Path,
			"method": req.Method,
		}
		if id != nil {
			resp["principal"] = id.Principal
			resp["roles"] = id.Roles
			resp["anonymous"] = id.Anonymous
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logging.Ctx(req.Context()).Error().Err(err).Msg("Failed to encode response")
		}
	})
}
