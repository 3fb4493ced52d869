// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/gatehouse/internal/logging"
)

// RequestIDHeader is the response header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// MiddlewareConfig holds transport-level middleware settings.
type MiddlewareConfig struct {
	CORSOrigins       []string
	RateLimitReqs     int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// Middleware builds the transport middleware stack.
type Middleware struct {
	cfg *MiddlewareConfig
}

// NewMiddleware creates the transport middleware set.
func NewMiddleware(cfg *MiddlewareConfig) *Middleware {
	if cfg == nil {
		cfg = &MiddlewareConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		}
	}
	return &Middleware{cfg: cfg}
}

// CORS returns the CORS middleware. Must be global so OPTIONS preflight
// requests are handled before authentication.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   m.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// RateLimit returns the per-IP rate limiter, or a no-op when disabled.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled || m.cfg.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(m.cfg.RateLimitReqs, m.cfg.RateLimitWindow)
}

// RequestID assigns each request an ID, propagates it through the logging
// context, and echoes it in the response headers for client correlation.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = logging.GenerateRequestID()
			}

			ctx := logging.ContextWithRequestID(r.Context(), id)
			w.Header().Set(RequestIDHeader, id)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders sets defensive response headers on API responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog logs each request with its outcome at debug level.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logging.Ctx(r.Context()).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("Request handled")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
