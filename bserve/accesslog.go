package bserve

import (
	"time"

	"github.com/advdv/bpush"
	"go.uber.org/zap"
)

// WithAccessLog returns middleware that logs one line per request once its response is committed.
// Requests to excludePaths are only logged at debug level.
func WithAccessLog(logger *zap.Logger, excludePaths ...string) bpush.Middleware {
	excludeSet := make(map[string]struct{}, len(excludePaths))
	for _, p := range excludePaths {
		excludeSet[p] = struct{}{}
	}

	logger = logger.Named("access")

	return func(next bpush.Listener) bpush.Listener {
		return &loggedListener{Listener: next, logger: logger, exclude: excludeSet}
	}
}

type loggedListener struct {
	bpush.Listener
	logger  *zap.Logger
	exclude map[string]struct{}

	x exchange
}

func (l *loggedListener) OnRequestStarted(method, url string, resp *bpush.Response) error {
	l.end()
	l.x.begin(method, url, resp)

	return l.Listener.OnRequestStarted(method, url, resp)
}

func (l *loggedListener) OnError(cause error) error {
	l.x.fail(cause)
	return l.Listener.OnError(cause)
}

func (l *loggedListener) OnRequestFinished() error {
	err := l.Listener.OnRequestFinished()
	l.x.fail(err)
	l.x.finished = true
	if l.x.complete() {
		l.end()
	}

	return err
}

func (l *loggedListener) OnCommitted() {
	l.Listener.OnCommitted()
	l.x.committed = true
	if l.x.complete() {
		l.end()
	}
}

func (l *loggedListener) Reset() {
	l.end()
	resetInner(l.Listener)
}

func (l *loggedListener) end() {
	if !l.x.active {
		return
	}
	defer l.x.clear()

	fields := []zap.Field{
		zap.String("method", l.x.method),
		zap.String("path", l.x.path),
		zap.Int("status", l.x.status()),
		zap.Duration("duration", time.Since(l.x.start)),
		zap.Bool("committed", l.x.committed),
	}

	if l.x.err != nil {
		fields = append(fields, zap.Error(l.x.err))
	}

	if _, excluded := l.exclude[l.x.path]; excluded {
		l.logger.Debug("request", fields...)
		return
	}

	l.logger.Info("request", fields...)
}

var _ bpush.Resetter = &loggedListener{}
