// Package bserve provides a batteries-included runtime for serving bpush routes over TCP.
//
// # Overview
//
// bserve handles the boilerplate around a [bpush.RestRoutes] table: environment parsing, structured
// logging, OpenTelemetry tracing, access logging, and graceful shutdown. A complete application can be
// created in a single call:
//
//	bserve.NewApp[Env](func(r *bpush.RestRoutes, h *Handlers) {
//	    r.HandleFunc("/items/{id}", h.GetItem, "get-item")
//	},
//	    bserve.WithFx(fx.Provide(NewHandlers)),
//	).Run()
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    bserve.BaseEnvironment
//	    Precision int `env:"CALC_PRECISION" envDefault:"6"`
//	}
//
// BaseEnvironment provides the following environment variables:
//
//	| Variable                 | Required | Default  | Description                                  |
//	|--------------------------|----------|----------|----------------------------------------------|
//	| BP_PORT                  | Yes      | -        | Port the server listens on                   |
//	| BP_SERVICE_NAME          | Yes      | -        | Service name for logging and tracing         |
//	| BP_HEALTH_PATH           | No       | /healthz | Health check path, not traced                |
//	| BP_LOG_LEVEL             | No       | info     | Log level (debug, info, warn, error)         |
//	| BP_OTEL_EXPORTER         | No       | none     | Trace exporter: "stdout" or "none"           |
//	| BP_MAX_CONNECTIONS       | No       | 0        | Concurrent connections, 0 is unlimited       |
//	| BP_RESPONSE_BUFFER_SIZE  | No       | 4096     | Response buffer capacity per connection      |
//	| BP_READ_BUFFER_SIZE      | No       | 4096     | Read buffer for the request head             |
//	| BP_BODY_CHUNK_SIZE       | No       | 8192     | Maximum size of delivered body chunks        |
//	| BP_MAX_FORM_SIZE         | No       | 1048576  | Limit for url-encoded bodies and form fields |
//	| BP_READ_TIMEOUT          | No       | 30s      | Time allowed to read a request               |
//	| BP_REUSE_PORT            | No       | false    | Listen with SO_REUSEPORT                     |
//
// # Runtime
//
// [Runtime] provides access to app-scoped dependencies and should be injected into handler
// constructors via fx:
//   - [Runtime.Env] returns the typed environment configuration
//   - [Runtime.Reverse] generates URLs for named routes
//   - [Runtime.NewRequest] builds traced outbound HTTP requests
//
// # Middleware
//
// Every connection's top-level listener is wrapped by [WithTracing] and [WithAccessLog]. Additional
// middleware is added with [WithMiddleware] and runs inside these two.
package bserve
