package bserve

import (
	"github.com/advdv/bpush"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding, BP_LOG_LEVEL controls the level (debug, info, warn, error).
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.logLevel())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogListenerError(callback string, err error) {
	l.Logger.Error("listener error", zap.String("callback", callback), zap.Error(err))
}

func (l zapLogger) LogPoolError(err error) {
	l.Logger.Error("pool error", zap.Error(err))
}

func (l zapLogger) LogProtocolError(err error) {
	l.Logger.Warn("protocol error", zap.Error(err))
}

func (l zapLogger) LogResponseError(err error) {
	l.Logger.Error("response error", zap.Error(err))
}

// NewBPushLogger reports the faults of connections to the zap logger.
func NewBPushLogger(l *zap.Logger) bpush.Logger {
	return zapLogger{l.Named("bpush").Named("bserve")}
}
