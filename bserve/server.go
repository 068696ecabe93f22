package bserve

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/advdv/bpush"
	"github.com/advdv/bpush/transport"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServerConfig holds optional configuration for the server.
type ServerConfig struct {
	// HealthHandler answers the health path, it defaults to a 200 OK.
	HealthHandler bpush.HandlerFunc
	// Middleware decorates the top-level listener of every connection, inside tracing and access logging.
	Middleware []bpush.Middleware
}

// ServerParams holds the dependencies for creating a server.
type ServerParams struct {
	fx.In

	Env        Environment
	Routes     *bpush.RestRoutes
	Logger     *zap.Logger
	Logs       bpush.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// Server serves the registered routes over TCP. Routes are collected until the server starts, the
// route table is built once on start.
type Server struct {
	params ServerParams
	cfg    ServerConfig

	mu    sync.Mutex
	srv   *transport.Server
	table *bpush.RestTable
	addr  net.Addr
	done  chan struct{}
}

// NewServer creates a server with all middleware and routing configured.
func NewServer(params ServerParams, cfg ServerConfig) *Server {
	return &Server{params: params, cfg: cfg}
}

// Start registers the health route, builds the route table and starts accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errors.New("bserve: server already started")
	}

	env := s.params.Env
	healthPath := env.healthPath()
	healthHandler := s.cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}

	s.params.Routes.HandleFunc(healthPath, healthHandler, "health")

	table, err := s.params.Routes.Build()
	if err != nil {
		return err
	}

	mws := append([]bpush.Middleware{
		WithTracing(s.params.TracerProv, s.params.Propagator, healthPath),
		WithAccessLog(s.params.Logger, healthPath),
	}, s.cfg.Middleware...)

	srv := &transport.Server{
		Pool:               bpush.NewPool(bpush.WrapFactory(table.NewRouter, mws...)),
		Logs:               s.params.Logs,
		MaxConns:           env.maxConnections(),
		ReadBufferSize:     env.readBufferSize(),
		BodyChunkSize:      env.bodyChunkSize(),
		MaxFormSize:        env.maxFormSize(),
		ResponseBufferSize: env.responseBufferSize(),
		ReadTimeout:        env.readTimeout(),
	}

	ln, err := transport.Listen(ctx, fmt.Sprintf(":%d", env.port()), env.reusePort())
	if err != nil {
		return err
	}

	done := make(chan struct{})
	s.srv, s.table, s.addr, s.done = srv, table, ln.Addr(), done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, transport.ErrServerClosed) {
			s.params.Logger.Error("server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops accepting connections and waits for the active ones until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shut down")
	}

	<-done

	return nil
}

// Addr returns the address the server listens on, nil before it started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Table returns the route table, nil before the server started.
func (s *Server) Table() *bpush.RestTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table
}

// startServerHook registers lifecycle hooks for the server.
func startServerHook(lc fx.Lifecycle, server *Server, env Environment, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting server", zap.Int("port", env.port()))
			return server.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Stop(ctx)
		},
	})
}

func defaultHealthHandler(_ *bpush.Request, resp bpush.RestResponse) error {
	return resp.Success().OK().Commit()
}
