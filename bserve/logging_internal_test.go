package bserve

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		env       testEnv
		wantLevel zapcore.Level
	}{
		{"info level", testEnv{level: zapcore.InfoLevel}, zapcore.InfoLevel},
		{"debug level", testEnv{level: zapcore.DebugLevel}, zapcore.DebugLevel},
		{"warn level", testEnv{level: zapcore.WarnLevel}, zapcore.WarnLevel},
		{"error level", testEnv{level: zapcore.ErrorLevel}, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.env)
			require.NoError(t, err)
			require.NotNil(t, logger)
			require.True(t, logger.Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				require.False(t, logger.Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}

func TestBaseEnvironmentLogLevelParsing(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		wantLevel zapcore.Level
	}{
		{"debug", "debug", zapcore.DebugLevel},
		{"info", "info", zapcore.InfoLevel},
		{"warn", "warn", zapcore.WarnLevel},
		{"error", "error", zapcore.ErrorLevel},
		{"DEBUG uppercase", "DEBUG", zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BP_PORT", "8080")
			t.Setenv("BP_SERVICE_NAME", "test")
			t.Setenv("BP_LOG_LEVEL", tt.envValue)

			env, err := ParseEnv[BaseEnvironment]()()
			require.NoError(t, err)
			require.Equal(t, tt.wantLevel, env.LogLevel)
		})
	}
}

func TestBaseEnvironmentDefaults(t *testing.T) {
	t.Setenv("BP_PORT", "8080")
	t.Setenv("BP_SERVICE_NAME", "test")

	env, err := ParseEnv[BaseEnvironment]()()
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, env.LogLevel)
	require.Equal(t, "/healthz", env.healthPath())
	require.Equal(t, "none", env.otelExporter())
	require.Equal(t, 4096, env.responseBufferSize())
	require.Equal(t, 8192, env.bodyChunkSize())
	require.Equal(t, int64(1<<20), env.maxFormSize())
	require.Zero(t, env.maxConnections())
}

func TestParseEnvMissingRequired(t *testing.T) {
	t.Setenv("BP_SERVICE_NAME", "test")

	_, err := ParseEnv[BaseEnvironment]()()
	require.ErrorContains(t, err, "failed to parse environment")
	require.ErrorContains(t, err, "BP_PORT")
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewBPushLogger(zap.New(core))

	tests := []struct {
		name    string
		log     func()
		message string
		level   zapcore.Level
	}{
		{"listener error", func() { logger.LogListenerError("OnParameter", errors.New("boom")) }, "listener error", zapcore.ErrorLevel},
		{"pool error", func() { logger.LogPoolError(errors.New("boom")) }, "pool error", zapcore.ErrorLevel},
		{"protocol error", func() { logger.LogProtocolError(errors.New("boom")) }, "protocol error", zapcore.WarnLevel},
		{"response error", func() { logger.LogResponseError(errors.New("boom")) }, "response error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.log()

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			require.Equal(t, tt.message, entries[0].Message)
			require.Equal(t, "bpush.bserve", entries[0].LoggerName)
			require.Equal(t, tt.level, entries[0].Level)
			require.Equal(t, "boom", entries[0].ContextMap()["error"])
		})
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mw := WithAccessLog(zap.New(core), "/health")

	t.Run("committed request", func(t *testing.T) {
		resp := push(t, mw(&inner{}), "GET", "/items/1?x=1")
		require.Contains(t, resp, "HTTP/1.1 201 Created")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		require.Equal(t, "access", entries[0].LoggerName)
		require.Equal(t, zapcore.InfoLevel, entries[0].Level)

		fields := entries[0].ContextMap()
		require.Equal(t, "GET", fields["method"])
		require.Equal(t, "/items/1", fields["path"])
		require.Equal(t, int64(201), fields["status"])
		require.Equal(t, true, fields["committed"])
		require.NotContains(t, fields, "error")
	})

	t.Run("failed request", func(t *testing.T) {
		resp := push(t, mw(&inner{fail: errors.New("broken")}), "POST", "/items")
		require.Contains(t, resp, "HTTP/1.1 500 Internal Server Error")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		require.Equal(t, int64(500), entries[0].ContextMap()["status"])
		require.Equal(t, "broken", entries[0].ContextMap()["error"])
	})

	t.Run("excluded path logs at debug", func(t *testing.T) {
		push(t, mw(&inner{}), "GET", "/health")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})

	t.Run("reset is forwarded", func(t *testing.T) {
		in := &inner{}
		push(t, mw(in), "GET", "/")
		logs.TakeAll()

		require.Equal(t, 1, in.reset)
	})
}
