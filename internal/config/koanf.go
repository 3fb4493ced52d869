// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gatehouse/config.yaml",
	"/etc/gatehouse/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with sensible defaults. These are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8476,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			AuthMode:        "none",
			Realm:           "gatehouse",
			JWTSecret:       "",
			JWTIssuer:       "",
			LockoutAttempts: 5,
			LockoutWindow:   1 * time.Minute,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
			TrustedProxies:  []string{},
		},
		Authz: AuthzConfig{
			CacheEnabled: true,
			CacheTTL:     5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			LogAllowed: true,
			LogDenied:  true,
			SampleRate: 1.0,
			BufferSize: 1024,
			StorePath:  "",
			Retention:  30 * 24 * time.Hour,
		},
		Proactive:                false,
		DenyUnannotatedEndpoints: false,
		DenyUnannotatedMembers:   false,
	}
}

// Load reads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists paths parsed as comma-separated slices when they
// arrive as strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		if trimmed := splitList(strVal); len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - AUTH_MODE -> security.auth_mode
//   - PROACTIVE -> proactive
//   - GATEHOUSE_POLICY_OPS_ROLES_ALLOWED -> policy.ops.roles-allowed
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":        "server.host",
		"http_port":        "server.port",
		"shutdown_timeout": "server.shutdown_timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Security
		"auth_mode":           "security.auth_mode",
		"auth_realm":          "security.realm",
		"jwt_secret":          "security.jwt_secret",
		"jwt_issuer":          "security.jwt_issuer",
		"lockout_attempts":    "security.lockout_attempts",
		"lockout_window":      "security.lockout_window",
		"rate_limit_reqs":     "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"rate_limit_disabled": "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",
		"trusted_proxies":     "security.trusted_proxies",

		// Decision engine
		"authz_cache_enabled": "authz.cache_enabled",
		"authz_cache_ttl":     "authz.cache_ttl",

		// Audit
		"audit_enabled":     "audit.enabled",
		"audit_log_allowed": "audit.log_allowed",
		"audit_log_denied":  "audit.log_denied",
		"audit_sample_rate": "audit.sample_rate",
		"audit_store_path":  "audit.store_path",
		"audit_retention":   "audit.retention",

		// Process-wide authorization switches
		"proactive":                  "proactive",
		"deny_unannotated_endpoints": "deny-unannotated-endpoints",
		"deny_unannotated_members":   "deny-unannotated-members",
	}

	if path, ok := envMappings[key]; ok {
		return path
	}

	// GATEHOUSE_POLICY_<NAME>_ROLES_ALLOWED and
	// GATEHOUSE_PERMISSION_<NAME>_{PATHS,POLICY,METHODS} map into the
	// flat rule namespace.
	if rest, ok := strings.CutPrefix(key, "gatehouse_policy_"); ok {
		if name, found := strings.CutSuffix(rest, "_roles_allowed"); found && name != "" {
			return "policy." + name + ".roles-allowed"
		}
		return ""
	}
	if rest, ok := strings.CutPrefix(key, "gatehouse_permission_"); ok {
		for _, field := range []string{"paths", "policy", "methods"} {
			if name, found := strings.CutSuffix(rest, "_"+field); found && name != "" {
				return "permission." + name + "." + field
			}
		}
		return ""
	}

	// Unmapped variables are ignored rather than guessed at.
	return ""
}
