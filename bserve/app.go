package bserve

import (
	"context"
	"net/http"

	"github.com/advdv/bpush"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler sets a custom health check handler.
// If not set, a default handler returning 200 OK is used.
func WithHealthHandler(h bpush.HandlerFunc) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// WithMiddleware adds middleware for the top-level listener of every connection.
func WithMiddleware(mw ...bpush.Middleware) Option {
	return func(c *AppConfig) {
		c.Middleware = append(c.Middleware, mw...)
	}
}

// FxOptions returns the fx options that make up the app's DI graph. [NewApp] and the bservetest
// package both construct their app from it.
func FxOptions[E Environment](routing any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	baseOpts := make([]fx.Option, 0, 14+len(cfg.FxOptions))
	baseOpts = append(baseOpts, []fx.Option{
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(bpush.NewRestRoutes),
		fx.Provide(func(e E) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewBPushLogger),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(func(tp trace.TracerProvider, prop propagation.TextMapPropagator) http.RoundTripper {
			return NewHTTPTransport(tp, prop)
		}),
		fx.Provide(NewRuntime[E]),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer),
		fx.Invoke(startServerHook),
		fx.Invoke(routing),
	}...)

	return append(baseOpts, cfg.FxOptions...)
}

// NewApp creates a batteries-included app with dependency injection.
//
// The routing function can request any types that are provided via fx options.
// At minimum, it should accept *bpush.RestRoutes for routing.
//
// Example:
//
//	bserve.NewApp[Env](func(r *bpush.RestRoutes, h *Handlers) {
//	    r.HandleFunc("/items/{id}", h.GetItem, "get-item")
//	},
//	    bserve.WithFx(fx.Provide(NewHandlers)),
//	).Run()
func NewApp[E Environment](routing any, opts ...Option) *App {
	return &App{
		app: fx.New(FxOptions[E](routing, opts...)...),
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application and blocks until ctx is done, after which the app is stopped.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}

// Err returns the error that occurred while constructing the DI graph, if any.
func (a *App) Err() error {
	return a.app.Err()
}
