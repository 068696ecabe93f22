package bservetest

import (
	"strconv"
	"testing"
)

// Env provides a chainable builder for setting [bserve.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all required [bserve.BaseEnvironment] env vars to test defaults.
// Port is required because each test must use a unique port to avoid collisions.
//
// Defaults:
//   - BP_SERVICE_NAME: "test"
//   - BP_HEALTH_PATH: "/health"
//   - BP_OTEL_EXPORTER: "none"
//   - BP_LOG_LEVEL: "warn"
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("BP_PORT", strconv.Itoa(port))
	t.Setenv("BP_SERVICE_NAME", "test")
	t.Setenv("BP_HEALTH_PATH", "/health")
	t.Setenv("BP_OTEL_EXPORTER", "none")
	t.Setenv("BP_LOG_LEVEL", "warn")
	return &Env{t: t}
}

// ServiceName overrides BP_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("BP_SERVICE_NAME", name)
	return e
}

// HealthPath overrides BP_HEALTH_PATH.
func (e *Env) HealthPath(path string) *Env {
	e.t.Helper()
	e.t.Setenv("BP_HEALTH_PATH", path)
	return e
}

// MaxConnections overrides BP_MAX_CONNECTIONS.
func (e *Env) MaxConnections(n int) *Env {
	e.t.Helper()
	e.t.Setenv("BP_MAX_CONNECTIONS", strconv.Itoa(n))
	return e
}

// ResponseBufferSize overrides BP_RESPONSE_BUFFER_SIZE.
func (e *Env) ResponseBufferSize(n int) *Env {
	e.t.Helper()
	e.t.Setenv("BP_RESPONSE_BUFFER_SIZE", strconv.Itoa(n))
	return e
}
