// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Package api provides HTTP routing and the administrative surface using
// the Chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/gatehouse/internal/auth"
	"github.com/tomtom215/gatehouse/internal/authz"
	"github.com/tomtom215/gatehouse/internal/metrics"
)

// Router assembles the HTTP surface: identity resolution, the guard
// pipeline, admin endpoints, and anything the caller mounts behind the
// guard.
type Router struct {
	handlers   *Handlers
	middleware *Middleware
	authMW     *auth.Middleware
	guard      *authz.Middleware
}

// NewRouter creates the router wiring.
func NewRouter(handlers *Handlers, mw *Middleware, authMW *auth.Middleware, guard *authz.Middleware) *Router {
	return &Router{
		handlers:   handlers,
		middleware: mw,
		authMW:     authMW,
		guard:      guard,
	}
}

// Setup builds the full handler tree.
//
// Every route below the identity-resolution layer passes through the rule
// engine. The admin endpoints additionally carry explicit access
// requirements, so the admin group counts as security-annotated: an
// unannotated handler added there falls under the deny-unannotated-members
// flag rather than slipping through.
func (router *Router) Setup(mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())
	r.Use(metrics.Instrument)
	r.Use(AccessLog())

	// Operational endpoints sit outside identity resolution: probes and
	// scrapers carry no credentials.
	r.Get("/healthz", router.handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(router.authMW.ResolveIdentity)

		// Admin surface: explicit role requirement on every member.
		r.Route("/api/v1/authz", func(r chi.Router) {
			admin := router.guard.Guard(authz.RequireRoles("admin"))
			r.With(admin).Get("/rules", router.handlers.Rules)
			r.With(admin).Post("/reload", router.handlers.Reload)
			r.With(admin).Get("/check", router.handlers.Check)
			r.With(admin).Get("/audit", router.handlers.AuditQuery)
		})

		// Everything else is governed purely by the configured rules.
		if mount != nil {
			r.Group(func(r chi.Router) {
				r.Use(router.guard.Protect)
				mount(r)
			})
		}
	})

	return r
}
