// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"time"
)

// EnvSpec is the basic environment configuration setup needed for the app to start
type EnvSpec struct {
	OtelGRPCEndpoint string `envconfig:"otel_grpc_endpoint"`
	OtelHTTPEndpoint string `envconfig:"otel_http_endpoint"`
	TracingEnabled   bool   `envconfig:"tracing_enabled" default:"true"`

	LogLevel string `envconfig:"log_level" default:"error"`
	Debug    bool   `envconfig:"debug" default:"false"`

	Port int `envconfig:"port" default:"8080"`

	DSN string `envconfig:"DSN" required:"true"`

	DBMaxConns         int32         `envconfig:"db_max_conns" default:"25"`
	DBMinConns         int32         `envconfig:"db_min_conns" default:"2"`
	DBMaxConnLifetime  time.Duration `envconfig:"db_max_conn_lifetime" default:"1h"`
	DBMaxConnIdleTime  time.Duration `envconfig:"db_max_conn_idle_time" default:"30m"`
	DBStatementTimeout time.Duration `envconfig:"db_statement_timeout" default:"10s"`

	SessionSigningKey     string        `envconfig:"session_signing_key" required:"true"`
	SessionLifetime       time.Duration `envconfig:"session_lifetime" default:"12h"`
	SessionRevalidateEach time.Duration `envconfig:"session_revalidate_each" default:"3m"`

	LoginFailureThreshold int           `envconfig:"login_failure_threshold" default:"5"`
	LoginLockoutWindow    time.Duration `envconfig:"login_lockout_window" default:"15m"`

	RateLimitPerSecond int `envconfig:"rate_limit_per_second" default:"10"`
	RateLimitBurst     int `envconfig:"rate_limit_burst" default:"20"`

	MaxBodyBytes int64 `envconfig:"max_body_bytes" default:"1048576"`

	CORSAllowedOrigins []string `envconfig:"cors_allowed_origins" default:"*"`

	OrgCacheTTL time.Duration `envconfig:"org_cache_ttl" default:"1m"`
}
