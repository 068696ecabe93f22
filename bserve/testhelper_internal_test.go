package bserve

import (
	"bytes"
	"testing"
	"time"

	"github.com/advdv/bpush"
	"go.uber.org/zap/zapcore"
)

type testEnv struct {
	level   zapcore.Level
	otelExp string
}

func (e testEnv) port() int               { return 8080 }
func (e testEnv) serviceName() string     { return "test" }
func (e testEnv) healthPath() string      { return "/health" }
func (e testEnv) logLevel() zapcore.Level { return e.level }
func (e testEnv) otelExporter() string    { return e.otelExp }
func (e testEnv) maxConnections() int     { return 0 }
func (e testEnv) responseBufferSize() int { return 4096 }
func (e testEnv) readBufferSize() int     { return 4096 }
func (e testEnv) bodyChunkSize() int      { return 8192 }
func (e testEnv) maxFormSize() int64      { return 1 << 20 }
func (e testEnv) readTimeout() time.Duration {
	return 30 * time.Second
}

func (e testEnv) reusePort() bool { return false }

type bufferCloser struct{ bytes.Buffer }

func (*bufferCloser) Close() error { return nil }

// inner commits 201 on finish, or returns fail instead.
type inner struct {
	bpush.BaseListener
	resp  *bpush.Response
	fail  error
	reset int
}

func (l *inner) OnRequestStarted(_, _ string, resp *bpush.Response) error {
	l.resp = resp
	return nil
}

func (l *inner) OnRequestFinished() error {
	if l.fail != nil {
		return l.fail
	}

	return l.resp.Success().Created().Commit()
}

func (l *inner) Reset() { l.reset++ }

// push runs one request with the given headers through a connection whose listener is l.
func push(t *testing.T, l bpush.Listener, method, url string, headers ...string) string {
	t.Helper()

	out := &bufferCloser{}
	conn := bpush.NewConnection(bpush.NewPool(func() bpush.Listener { return l }), out,
		bpush.WithLogger(bpush.NewTestLogger(t)))

	conn.Open()
	conn.RequestStarted(method, url)
	for i := 0; i+1 < len(headers); i += 2 {
		conn.Header(headers[i], headers[i+1])
	}
	conn.RequestFinished()
	conn.Close()

	return out.String()
}
