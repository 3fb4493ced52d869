// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/gatehouse/internal/audit"
	"github.com/tomtom215/gatehouse/internal/auth"
	"github.com/tomtom215/gatehouse/internal/authz"
	"github.com/tomtom215/gatehouse/internal/logging"
	"github.com/tomtom215/gatehouse/internal/validation"
)

// ReloadFunc rebuilds a rule snapshot from current configuration and
// installs it. Returns the installed snapshot.
type ReloadFunc func() (*authz.Snapshot, error)

// Handlers serves the administrative and health endpoints.
type Handlers struct {
	engine  *authz.Engine
	reload  ReloadFunc
	store   *audit.Store
	started time.Time
	version string
}

// NewHandlers creates the handler set. reload may be nil to disable the
// reload endpoint; store may be nil when no durable audit store is
// configured.
func NewHandlers(engine *authz.Engine, reload ReloadFunc, store *audit.Store, version string) *Handlers {
	return &Handlers{
		engine:  engine,
		reload:  reload,
		store:   store,
		started: time.Now(),
		version: version,
	}
}

// Health reports liveness plus basic snapshot state.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           h.version,
		"uptime":            time.Since(h.started).Round(time.Second).String(),
		"rules":             snap.RuleCount(),
		"snapshot_built_at": snap.BuiltAt(),
	})
}

// Rules returns the diagnostics view of the active snapshot.
func (h *Handlers) Rules(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"built_at": snap.BuiltAt(),
		"rules":    snap.Rules(),
		"policies": snap.Policies(),
	})
}

// Reload rebuilds the snapshot from current configuration and installs it
// atomically. In-flight requests keep the snapshot they started with.
func (h *Handlers) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		respondError(w, http.StatusNotImplemented, "reload is not configured")
		return
	}

	snap, err := h.reload()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Rule reload failed")
		if errors.Is(err, authz.ErrInvalidConfig) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "reload failed")
		return
	}

	logging.Ctx(r.Context()).Info().Int("rules", snap.RuleCount()).Msg("Rule snapshot reloaded")
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "reloaded",
		"rules":    snap.RuleCount(),
		"built_at": snap.BuiltAt(),
	})
}

// checkRequest is the query surface of the decision simulator.
type checkRequest struct {
	Path      string `validate:"required,startswith=/"`
	Method    string `validate:"required,httpmethod"`
	Principal string
	Roles     []string
}

// Check simulates an authorization decision for an arbitrary path, method,
// and identity without invoking any handler. Anonymous unless a principal
// is supplied.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := checkRequest{
		Path:      q.Get("path"),
		Method:    q.Get("method"),
		Principal: q.Get("principal"),
	}
	if roles := q.Get("roles"); roles != "" {
		req.Roles = splitQueryList(roles)
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid query parameters",
			"fields": verr.Fields,
		})
		return
	}

	id := auth.AnonymousIdentity()
	if req.Principal != "" {
		id = &auth.Identity{
			Principal: req.Principal,
			Roles:     req.Roles,
			Method:    "simulated",
		}
	}

	decision := h.engine.Authorize(req.Path, req.Method, id, nil)
	respondJSON(w, http.StatusOK, decision)
}

// AuditQuery returns persisted decision events in a time range. Only
// available when the durable store is configured.
func (h *Handlers) AuditQuery(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotImplemented, "audit store is not configured")
		return
	}

	q := r.URL.Query()
	to := time.Now()
	from := to.Add(-1 * time.Hour)

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
		to = t
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10000 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 10000")
			return
		}
		limit = n
	}

	events, err := h.store.Query(from, to, limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Audit query failed")
		respondError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"from":   from,
		"to":     to,
		"count":  len(events),
		"events": events,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func splitQueryList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
