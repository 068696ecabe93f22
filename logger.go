package bpush

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger can be implemented to get informed about faults that the connection recovers from.
type Logger interface {
	LogListenerError(callback string, err error)
	LogPoolError(err error)
	LogProtocolError(err error)
	LogResponseError(err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogListenerError(callback string, err error) {
	l.Logger.Printf("bpush: listener error in %s: %s", callback, err)
}

func (l stdLogger) LogPoolError(err error) {
	l.Logger.Printf("bpush: pool error: %s", err)
}

func (l stdLogger) LogProtocolError(err error) {
	l.Logger.Printf("bpush: protocol error: %s", err)
}

func (l stdLogger) LogResponseError(err error) {
	l.Logger.Printf("bpush: response error: %s", err)
}

// NewStdLogger logs through a standard library logger. A nil logger uses log.Default().
func NewStdLogger(l *log.Logger) Logger {
	if l == nil {
		l = log.Default()
	}

	return stdLogger{l}
}

// TestLogger counts the logged faults and forwards them to the test log.
type TestLogger struct {
	tb testing.TB

	NumLogListenerError int64
	NumLogPoolError     int64
	NumLogProtocolError int64
	NumLogResponseError int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogListenerError(callback string, err error) {
	atomic.AddInt64(&l.NumLogListenerError, 1)
	l.tb.Logf("bpush: listener error in %s: %s", callback, err)
}

func (l *TestLogger) LogPoolError(err error) {
	atomic.AddInt64(&l.NumLogPoolError, 1)
	l.tb.Logf("bpush: pool error: %s", err)
}

func (l *TestLogger) LogProtocolError(err error) {
	atomic.AddInt64(&l.NumLogProtocolError, 1)
	l.tb.Logf("bpush: protocol error: %s", err)
}

func (l *TestLogger) LogResponseError(err error) {
	atomic.AddInt64(&l.NumLogResponseError, 1)
	l.tb.Logf("bpush: response error: %s", err)
}

// Listener returns the number of logged listener errors.
func (l *TestLogger) Listener() int64 { return atomic.LoadInt64(&l.NumLogListenerError) }

// Protocol returns the number of logged protocol errors.
func (l *TestLogger) Protocol() int64 { return atomic.LoadInt64(&l.NumLogProtocolError) }

var _ Logger = &TestLogger{}
