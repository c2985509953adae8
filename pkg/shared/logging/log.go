package logging

import (
	"context"
	"os"

	zap "go.uber.org/zap"
)

// EnvDebug switches the logger to the development config when set to "true".
const EnvDebug = "UDF_WORKER_DEBUG"

type options struct {
	debug       bool
	outputPaths []string
}

// Option configures NewLogger.
type Option func(*options)

// WithDebug selects the development config. UDF_WORKER_DEBUG=true does the same.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = o.debug || debug
	}
}

// WithOutputPaths overrides where logs are written, stderr by default.
func WithOutputPaths(paths ...string) Option {
	return func(o *options) {
		o.outputPaths = paths
	}
}

// NewLogger returns a new zap.SugaredLogger
func NewLogger(opts ...Option) *zap.SugaredLogger {
	o := &options{
		debug: os.Getenv(EnvDebug) == "true",
		// stdout and stderr of a worker are its local diagnostic channel; keep logs off the data path.
		outputPaths: []string{"stderr"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	config := zap.NewProductionConfig()
	if o.debug {
		config = zap.NewDevelopmentConfig()
	}
	config.OutputPaths = o.outputPaths
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("udf-worker").Sugar()
}

type loggerKey struct{}

// WithLogger returns a copy of parent context in which the
// value associated with logger key is the supplied logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger in the context.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger()
}
