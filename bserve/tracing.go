package bserve

import (
	"context"
	"strings"

	"github.com/advdv/bpush"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
)

const tracerName = "github.com/advdv/bpush/bserve"

// NewTracerProvider creates and configures the OpenTelemetry TracerProvider.
// Supported exporters via BP_OTEL_EXPORTER: "stdout" and "none" (default).
// Shutdown is handled automatically via fx.Lifecycle.
func NewTracerProvider(lc fx.Lifecycle, env Environment) (trace.TracerProvider, error) {
	exporter, err := newExporter(env.otelExporter())
	if err != nil {
		return nil, err
	}

	if exporter == nil {
		return noop.NewTracerProvider(), nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(newResource(env.serviceName())),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// NewPropagator creates the W3C TraceContext + Baggage composite propagator.
func NewPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// newExporter creates a span exporter, a nil exporter disables tracing.
func newExporter(exporterType string) (sdktrace.SpanExporter, error) {
	switch exporterType {
	case "none", "":
		return nil, nil
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, errors.Newf("unsupported BP_OTEL_EXPORTER: %q (supported: stdout, none)", exporterType)
	}
}

func newResource(serviceName string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

// WithTracing returns middleware that records a server span for every request. The parent span is
// extracted from the request headers with prop. Requests to excludePaths are not traced.
// The TracerProvider and Propagator are explicitly injected to avoid global state.
//
// The span starts once the header section has arrived, so the wrapped listener sees the request start
// late: parameters and headers are held back and replayed after OnRequestStarted. The span's context is
// available from [bpush.Response.Context] in all callbacks of the wrapped listener.
func WithTracing(tp trace.TracerProvider, prop propagation.TextMapPropagator, excludePaths ...string) bpush.Middleware {
	excludeSet := make(map[string]struct{}, len(excludePaths))
	for _, p := range excludePaths {
		excludeSet[p] = struct{}{}
	}

	tracer := tp.Tracer(tracerName)

	return func(next bpush.Listener) bpush.Listener {
		return &tracedListener{
			Listener: next,
			tracer:   tracer,
			prop:     prop,
			exclude:  excludeSet,
			carrier:  propagation.MapCarrier{},
			started:  true,
		}
	}
}

// heldEvent is a parameter or header that arrived before the span started.
type heldEvent struct {
	header      bool
	name, value string
}

type tracedListener struct {
	bpush.Listener
	tracer  trace.Tracer
	prop    propagation.TextMapPropagator
	exclude map[string]struct{}

	x       exchange
	url     string
	carrier propagation.MapCarrier
	held    []heldEvent
	span    trace.Span
	started bool
	failed  bool
}

func (l *tracedListener) OnRequestStarted(method, url string, resp *bpush.Response) error {
	l.end()
	l.x.begin(method, url, resp)
	l.started, l.failed = false, false

	if _, excluded := l.exclude[l.x.path]; excluded {
		l.x.clear()
		l.started = true

		return l.Listener.OnRequestStarted(method, url, resp)
	}

	l.url = url

	return nil
}

func (l *tracedListener) OnParameter(name, value string) error {
	if !l.started {
		l.held = append(l.held, heldEvent{name: name, value: value})
		return nil
	}

	if l.failed {
		return nil
	}

	return l.Listener.OnParameter(name, value)
}

func (l *tracedListener) OnHeader(name, value string) error {
	if !l.started {
		l.carrier.Set(strings.ToLower(name), value)
		l.held = append(l.held, heldEvent{header: true, name: name, value: value})

		return nil
	}

	if l.failed {
		return nil
	}

	return l.Listener.OnHeader(name, value)
}

func (l *tracedListener) OnBodyStarted() error {
	if ok, err := l.start(); !ok {
		return err
	}

	return l.Listener.OnBodyStarted()
}

func (l *tracedListener) OnBodyContent(p []byte) error {
	if ok, err := l.start(); !ok {
		return err
	}

	return l.Listener.OnBodyContent(p)
}

func (l *tracedListener) OnBodyFinished() error {
	if ok, err := l.start(); !ok {
		return err
	}

	return l.Listener.OnBodyFinished()
}

func (l *tracedListener) OnPartStarted() error {
	if ok, err := l.start(); !ok {
		return err
	}

	return l.Listener.OnPartStarted()
}

func (l *tracedListener) OnPartContent(p []byte) error {
	if ok, err := l.start(); !ok {
		return err
	}

	return l.Listener.OnPartContent(p)
}

func (l *tracedListener) OnPartFinished() error {
	if ok, err := l.start(); !ok {
		return err
	}

	return l.Listener.OnPartFinished()
}

func (l *tracedListener) OnError(cause error) error {
	l.x.fail(cause)

	if ok, err := l.start(); !ok {
		return err
	}

	return l.Listener.OnError(cause)
}

func (l *tracedListener) OnRequestFinished() error {
	_, serr := l.start()

	err := l.Listener.OnRequestFinished()
	if serr != nil {
		err = errors.CombineErrors(serr, err)
	}

	l.x.fail(err)
	l.x.finished = true
	if l.x.complete() {
		l.end()
	}

	return err
}

func (l *tracedListener) OnCommitted() {
	l.Listener.OnCommitted()
	l.x.committed = true
	if l.x.complete() {
		l.end()
	}
}

// Reset ends a span that never saw its commit, e.g. when writing the response failed.
func (l *tracedListener) Reset() {
	l.end()
	l.started, l.failed = true, false
	resetInner(l.Listener)
}

// start begins the span and the wrapped request, then replays the held events. It reports whether the
// current event should still be delivered.
func (l *tracedListener) start() (bool, error) {
	if l.started {
		return !l.failed && !l.x.committed, nil
	}

	l.started = true

	ctx, span := l.tracer.Start(l.prop.Extract(context.Background(), l.carrier), l.x.method+" "+l.x.path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(l.x.start),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(l.x.method),
			semconv.URLPath(l.x.path),
		))

	l.span = span
	l.x.resp.SetContext(ctx)

	err := l.Listener.OnRequestStarted(l.x.method, l.url, l.x.resp)
	for _, e := range l.held {
		if err != nil || l.x.committed {
			break
		}

		if e.header {
			err = l.Listener.OnHeader(e.name, e.value)
		} else {
			err = l.Listener.OnParameter(e.name, e.value)
		}
	}

	clear(l.held)
	l.held = l.held[:0]

	if err != nil {
		l.failed = true
		l.x.fail(err)

		return false, err
	}

	return !l.x.committed, nil
}

func (l *tracedListener) end() {
	clear(l.held)
	l.held = l.held[:0]
	clear(l.carrier)

	if !l.x.active {
		return
	}
	defer l.x.clear()

	if l.span == nil {
		return
	}

	status := l.x.status()
	if status > 0 {
		l.span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	}

	switch {
	case l.x.err != nil:
		l.span.RecordError(l.x.err)
		l.span.SetStatus(codes.Error, l.x.err.Error())
	case status >= 500:
		l.span.SetStatus(codes.Error, "")
	}

	l.span.End()
	l.span = nil
}

var _ bpush.Resetter = &tracedListener{}
