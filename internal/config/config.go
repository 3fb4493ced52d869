// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Package config loads and validates the process configuration from
// defaults, an optional YAML file, and environment variable overrides.
//
// Authorization rules live in a flat namespace:
//
//	policy.<name>.roles-allowed      comma-separated role list
//	permission.<name>.paths          comma-separated path patterns
//	permission.<name>.policy         policy reference (named or built-in)
//	permission.<name>.methods        comma-separated HTTP methods (optional)
//
// plus three process-wide switches: proactive, deny-unannotated-endpoints,
// and deny-unannotated-members.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/gatehouse/internal/authz"
)

// Config is the complete process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Security SecurityConfig `koanf:"security"`
	Authz    AuthzConfig    `koanf:"authz"`
	Audit    AuditConfig    `koanf:"audit"`

	// Policies and Permissions carry the raw rule namespace. Values stay
	// as comma-separated strings until snapshot build so the file and env
	// forms behave identically.
	Policies    map[string]PolicySpec     `koanf:"policy"`
	Permissions map[string]PermissionSpec `koanf:"permission"`

	// Proactive authenticates any request bearing credentials, even on
	// public paths, and rejects invalid credentials outright.
	Proactive bool `koanf:"proactive"`

	// DenyUnannotatedEndpoints denies externally reachable handlers that
	// carry no access requirement.
	DenyUnannotatedEndpoints bool `koanf:"deny-unannotated-endpoints"`

	// DenyUnannotatedMembers denies unannotated handlers in groups where
	// at least one sibling carries an access requirement.
	DenyUnannotatedMembers bool `koanf:"deny-unannotated-members"`
}

// PolicySpec defines a role-based policy.
type PolicySpec struct {
	RolesAllowed string `koanf:"roles-allowed"`
}

// PermissionSpec binds path patterns (and optionally methods) to a policy.
type PermissionSpec struct {
	Paths   string `koanf:"paths"`
	Policy  string `koanf:"policy"`
	Methods string `koanf:"methods"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds authentication and transport hardening settings.
type SecurityConfig struct {
	// AuthMode selects the authentication mechanism: none, basic, token,
	// or multi (basic and token chained by priority).
	AuthMode string `koanf:"auth_mode"`

	// Realm is advertised in WWW-Authenticate challenges.
	Realm string `koanf:"realm"`

	// JWTSecret signs and verifies bearer tokens (HS256). Required for
	// token and multi modes; minimum 32 bytes.
	JWTSecret string `koanf:"jwt_secret"`

	// JWTIssuer, when set, is required in token claims.
	JWTIssuer string `koanf:"jwt_issuer"`

	// Users maps usernames to bcrypt password hashes and roles for basic
	// authentication.
	Users map[string]UserSpec `koanf:"users"`

	// LockoutAttempts failed authentications within LockoutWindow block
	// further attempts from that client.
	LockoutAttempts int           `koanf:"lockout_attempts"`
	LockoutWindow   time.Duration `koanf:"lockout_window"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins    []string `koanf:"cors_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// UserSpec is one basic-auth account.
type UserSpec struct {
	// PasswordHash is a bcrypt hash. Plaintext passwords are not accepted.
	PasswordHash string `koanf:"password_hash"`
	Roles        string `koanf:"roles"`
}

// RoleList returns the account's roles as a slice.
func (u UserSpec) RoleList() []string {
	return splitList(u.Roles)
}

// AuthzConfig holds decision engine settings.
type AuthzConfig struct {
	CacheEnabled bool          `koanf:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// AuditConfig holds decision audit settings.
type AuditConfig struct {
	Enabled    bool    `koanf:"enabled"`
	LogAllowed bool    `koanf:"log_allowed"`
	LogDenied  bool    `koanf:"log_denied"`
	SampleRate float64 `koanf:"sample_rate"`
	BufferSize int     `koanf:"buffer_size"`

	// StorePath enables durable decision storage when non-empty.
	StorePath string        `koanf:"store_path"`
	Retention time.Duration `koanf:"retention"`
}

// Definitions converts the raw policy and permission namespaces into the
// forms the snapshot builder consumes. Splitting happens here; semantic
// validation happens in the builder.
func (c *Config) Definitions() (map[string]authz.PolicyDefinition, map[string]authz.RuleDefinition) {
	policies := make(map[string]authz.PolicyDefinition, len(c.Policies))
	for name, spec := range c.Policies {
		policies[name] = authz.PolicyDefinition{
			RolesAllowed: splitList(spec.RolesAllowed),
		}
	}

	rules := make(map[string]authz.RuleDefinition, len(c.Permissions))
	for name, spec := range c.Permissions {
		rules[name] = authz.RuleDefinition{
			Paths:   splitList(spec.Paths),
			Policy:  spec.Policy,
			Methods: splitList(spec.Methods),
		}
	}

	return policies, rules
}

// splitList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that required configuration is present and valid.
// Rule semantics (policy references, pattern shape) are validated by the
// snapshot builder, not here.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none", "basic", "token", "multi":
	default:
		return fmt.Errorf("security.auth_mode must be one of none/basic/token/multi, got %q", c.Security.AuthMode)
	}

	needsJWT := c.Security.AuthMode == "token" || c.Security.AuthMode == "multi"
	if needsJWT && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 bytes for auth mode %q", c.Security.AuthMode)
	}

	needsUsers := c.Security.AuthMode == "basic" || c.Security.AuthMode == "multi"
	if needsUsers && len(c.Security.Users) == 0 {
		return fmt.Errorf("security.users must define at least one account for auth mode %q", c.Security.AuthMode)
	}
	for name, u := range c.Security.Users {
		if !strings.HasPrefix(u.PasswordHash, "$2") {
			return fmt.Errorf("security.users.%s.password_hash must be a bcrypt hash", name)
		}
	}

	if c.Security.LockoutAttempts < 0 {
		return fmt.Errorf("security.lockout_attempts must not be negative")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.SampleRate < 0 || c.Audit.SampleRate > 1 {
		return fmt.Errorf("audit.sample_rate must be between 0.0 and 1.0, got %g", c.Audit.SampleRate)
	}
	if c.Audit.StorePath != "" && c.Audit.Retention < 0 {
		return fmt.Errorf("audit.retention must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("logging.level must be one of trace/debug/info/warn/error/fatal, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
