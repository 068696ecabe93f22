package example

import (
	"github.com/advdv/bpush"
	"go.uber.org/zap"
)

// Middleware provides an example of route middleware that logs the failures of a route's listener.
func Middleware(logs *zap.Logger) bpush.RestMiddleware {
	return func(n bpush.RestListener) bpush.RestListener {
		return &loggingListener{RestListener: n, logs: logs}
	}
}

type loggingListener struct {
	bpush.RestListener
	logs   *zap.Logger
	method string
}

func (l *loggingListener) OnRequestStarted(method string, resp bpush.RestResponse) error {
	l.method = method
	return l.RestListener.OnRequestStarted(method, resp)
}

func (l *loggingListener) OnError(err error) error {
	l.logs.Warn("request failed", zap.String("method", l.method), zap.Error(err))
	return l.RestListener.OnError(err)
}

func (l *loggingListener) OnRequestFinished() error {
	err := l.RestListener.OnRequestFinished()
	if err != nil {
		l.logs.Info("request rejected", zap.String("method", l.method), zap.Error(err))
	}

	return err
}

func (l *loggingListener) Reset() { l.method = "" }

var _ bpush.Resetter = &loggingListener{}
