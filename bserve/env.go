package bserve

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	port() int
	serviceName() string
	healthPath() string
	logLevel() zapcore.Level
	otelExporter() string
	maxConnections() int
	responseBufferSize() int
	readBufferSize() int
	bodyChunkSize() int
	maxFormSize() int64
	readTimeout() time.Duration
	reusePort() bool
}

// BaseEnvironment contains the environment variables every server reads.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Port        int           `env:"BP_PORT,required"`
	ServiceName string        `env:"BP_SERVICE_NAME,required"`
	HealthPath  string        `env:"BP_HEALTH_PATH" envDefault:"/healthz"`
	LogLevel    zapcore.Level `env:"BP_LOG_LEVEL" envDefault:"info"`
	// OtelExporter selects where spans go: "stdout" or "none".
	OtelExporter       string `env:"BP_OTEL_EXPORTER" envDefault:"none"`
	MaxConnections     int    `env:"BP_MAX_CONNECTIONS" envDefault:"0"`
	ResponseBufferSize int    `env:"BP_RESPONSE_BUFFER_SIZE" envDefault:"4096"`
	ReadBufferSize     int    `env:"BP_READ_BUFFER_SIZE" envDefault:"4096"`
	BodyChunkSize      int    `env:"BP_BODY_CHUNK_SIZE" envDefault:"8192"`
	MaxFormSize        int64  `env:"BP_MAX_FORM_SIZE" envDefault:"1048576"`
	// ReadTimeout bounds reading a request, a slow client receives a best-effort 500.
	ReadTimeout time.Duration `env:"BP_READ_TIMEOUT" envDefault:"30s"`
	ReusePort   bool          `env:"BP_REUSE_PORT" envDefault:"false"`
}

func (e BaseEnvironment) port() int               { return e.Port }
func (e BaseEnvironment) serviceName() string     { return e.ServiceName }
func (e BaseEnvironment) healthPath() string      { return e.HealthPath }
func (e BaseEnvironment) logLevel() zapcore.Level { return e.LogLevel }
func (e BaseEnvironment) otelExporter() string    { return e.OtelExporter }
func (e BaseEnvironment) maxConnections() int     { return e.MaxConnections }
func (e BaseEnvironment) responseBufferSize() int { return e.ResponseBufferSize }
func (e BaseEnvironment) readBufferSize() int     { return e.ReadBufferSize }
func (e BaseEnvironment) bodyChunkSize() int      { return e.BodyChunkSize }
func (e BaseEnvironment) maxFormSize() int64      { return e.MaxFormSize }
func (e BaseEnvironment) readTimeout() time.Duration {
	return e.ReadTimeout
}

func (e BaseEnvironment) reusePort() bool {
	return e.ReusePort
}

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}
		return e, nil
	}
}
