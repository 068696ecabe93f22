package bserve_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/advdv/bpush"
	"github.com/advdv/bpush/bserve"
	"github.com/advdv/bpush/bserve/bservetest"
	"github.com/carlmjohnson/requests"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

// TestEnv is a test environment with app-specific fields beyond BaseEnvironment.
type TestEnv struct {
	bserve.BaseEnvironment
	Greeting string `env:"GREETING" envDefault:"hello"`
}

type Handlers struct {
	rt *bserve.Runtime[TestEnv]
}

func NewHandlers(rt *bserve.Runtime[TestEnv]) *Handlers {
	return &Handlers{rt: rt}
}

func (h *Handlers) Greet(req *bpush.Request, resp bpush.RestResponse) error {
	self, err := h.rt.Reverse("greet", req.Param("name"))
	if err != nil {
		return err
	}

	msg := h.rt.Env().Greeting + " " + req.Param("name")
	out := resp.Success().OK().Header("X-Self", self)

	body, err := out.Body("text/plain", len(msg))
	if err != nil {
		return err
	}

	if _, err := body.WriteString(msg); err != nil {
		return err
	}

	return out.Commit()
}

func (h *Handlers) Proxy(req *bpush.Request, resp bpush.RestResponse) error {
	var s string
	if err := h.rt.NewRequest().BaseURL(req.Param("target")).ToString(&s).Fetch(resp.Context()); err != nil {
		return bpush.NewError(bpush.CodeBadRequest, err)
	}

	out := resp.Success().OK()
	body, err := out.Body("text/plain", len(s))
	if err != nil {
		return err
	}

	if _, err := body.WriteString(s); err != nil {
		return err
	}

	return out.Commit()
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestApp(t *testing.T) {
	port := freePort(t)
	bservetest.SetBaseEnv(t, port).ServiceName("greeter").MaxConnections(8)
	t.Setenv("GREETING", "hi")

	var server *bserve.Server
	app := bservetest.New[TestEnv](t,
		func(r *bpush.RestRoutes, h *Handlers) {
			r.HandleFunc("/greet/{name}", h.Greet, "greet")
			r.HandleFunc("/proxy", h.Proxy)
		},
		bserve.WithFx(fx.Provide(NewHandlers), fx.Populate(&server)),
	)

	app.RequireStart()
	t.Cleanup(app.RequireStop)

	base := "http://127.0.0.1:" + strconv.Itoa(port)
	ctx := context.Background()

	t.Run("route with runtime", func(t *testing.T) {
		var s string
		hdr := http.Header{}
		require.NoError(t, requests.URL(base+"/greet/joe").
			ToString(&s).
			CopyHeaders(hdr).
			Fetch(ctx))

		require.Equal(t, "hi joe", s)
		require.Equal(t, "/greet/joe", hdr.Get("X-Self"))
	})

	t.Run("health", func(t *testing.T) {
		require.NoError(t, requests.URL(base+"/health").Fetch(ctx))
	})

	t.Run("not found", func(t *testing.T) {
		var s string
		err := requests.URL(base + "/nope").
			ToString(&s).
			Fetch(ctx)
		require.True(t, requests.HasStatusErr(err, http.StatusNotFound), "%v", err)
	})

	t.Run("outbound request", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("upstream"))
		}))
		defer ts.Close()

		var s string
		require.NoError(t, requests.URL(base+"/proxy").Param("target", ts.URL).ToString(&s).Fetch(ctx))
		require.Equal(t, "upstream", s)
	})

	t.Run("route table", func(t *testing.T) {
		pattern, ok := server.Table().Lookup("/greet/x")
		require.True(t, ok)
		require.Equal(t, "/greet/{name}", pattern)

		stats, ok := server.Table().PoolStats("/greet/{name}")
		require.True(t, ok)
		require.Positive(t, stats.Created)
	})

	t.Run("listens on the configured port", func(t *testing.T) {
		require.True(t, strings.HasSuffix(server.Addr().String(), ":"+strconv.Itoa(port)))
	})
}

func TestAppBuildError(t *testing.T) {
	bservetest.SetBaseEnv(t, freePort(t))

	app := fx.New(bserve.FxOptions[TestEnv](func(r *bpush.RestRoutes) {
		r.HandleFunc("/a/{x}", func(*bpush.Request, bpush.RestResponse) error { return nil })
		r.HandleFunc("/a/{y}", func(*bpush.Request, bpush.RestResponse) error { return nil })
	})...)
	require.NoError(t, app.Err())

	err := app.Start(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "failed to build route table")
}
