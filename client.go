package tracekit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tracekit/tracekit-go/auth"
	"github.com/tracekit/tracekit-go/internal/config"
	"github.com/tracekit/tracekit-go/internal/logging"
	"github.com/tracekit/tracekit-go/internal/transport"
	"github.com/tracekit/tracekit-go/trace"
)

var (
	// ErrClientClosed is returned by operations after Shutdown.
	ErrClientClosed = errors.New("tracekit: client is closed")

	// ErrInvalidConfig is returned by New when required configuration is
	// missing. Missing workspace id or credentials are construction-time
	// failures, never silently defaulted.
	ErrInvalidConfig = errors.New("tracekit: invalid configuration")
)

// Client is the SDK entry point. It owns the tracer, the export pipeline,
// and the propagator, and is safe for concurrent use. Create one per process
// and close it on shutdown so queued spans drain.
type Client struct {
	cfg        *config.Config
	logger     *logging.Logger
	provider   auth.Provider
	tracer     *trace.Tracer
	processor  *trace.Processor
	exporter   *trace.HTTPExporter
	propagator *trace.Propagator

	closed atomic.Bool
}

// New builds a client from environment configuration overlaid with options.
func New(opts ...Option) (*Client, error) {
	cfg := config.LoadOrDefault()

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.apply(cfg)

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Log.Level,
			Development: cfg.Log.Development,
			OutputPaths: []string{"stderr"},
		})
		if err != nil {
			logger = logging.NewDefault()
		}
	}

	if cfg.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: workspace id is required", ErrInvalidConfig)
	}

	provider, err := buildProvider(cfg, o, logger)
	if err != nil {
		return nil, err
	}

	handler := trace.LogFinishEvents(logger)
	if o.finishHandler != nil {
		handler = o.finishHandler
	}

	httpClient := transport.NewClient(cfg.HTTP)
	endpoint := strings.TrimSuffix(cfg.BaseURL, "/") + cfg.TracePath

	exporter := trace.NewHTTPExporter(httpClient, endpoint, cfg.WorkspaceID, provider,
		trace.WithServiceName(cfg.ServiceName),
		trace.WithExportBatchCap(cfg.Trace.ExportBatchCap),
		trace.WithExporterLogger(logger.Named("exporter")),
		trace.WithExportEventHandler(handler),
	)
	processor := trace.NewProcessor(exporter,
		trace.WithMaxQueueSize(cfg.Trace.MaxQueueSize),
		trace.WithBatchSize(cfg.Trace.BatchSize),
		trace.WithScheduleDelay(cfg.Trace.ScheduleDelay),
		trace.WithProcessorLogger(logger.Named("processor")),
	)
	tracer := trace.NewTracer(processor,
		trace.WithTracerLogger(logger.Named("tracer")),
		trace.WithFinishEventHandler(handler),
	)

	c := &Client{
		cfg:        cfg,
		logger:     logger,
		provider:   provider,
		tracer:     tracer,
		processor:  processor,
		exporter:   exporter,
		propagator: trace.NewPropagator(o.headerMapping),
	}

	logger.Info("client initialized",
		zap.String("workspace_id", cfg.WorkspaceID),
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", endpoint))
	return c, nil
}

// buildProvider resolves the credential source: an explicit provider wins,
// then a static token, then the JWT triple.
func buildProvider(cfg *config.Config, o options, logger *logging.Logger) (auth.Provider, error) {
	if o.provider != nil {
		return o.provider, nil
	}
	if cfg.Auth.Token != "" {
		return auth.NewStatic(cfg.Auth.Token), nil
	}
	if cfg.Auth.JWTClientID != "" || cfg.Auth.JWTPrivateKey != "" || cfg.Auth.JWTPublicKeyID != "" {
		provider, err := auth.NewJWT(cfg.Auth.JWTClientID, cfg.Auth.JWTPrivateKey, cfg.Auth.JWTPublicKeyID,
			auth.WithBaseURL(cfg.BaseURL),
			auth.WithHTTPClient(transport.NewClient(cfg.HTTP)),
			auth.WithLogger(logger.Logger),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return provider, nil
	}
	return nil, fmt.Errorf("%w: either an api token or the jwt credential triple is required", ErrInvalidConfig)
}

// StartSpan creates a span named name with the given type tag, resolving the
// parent from ctx. See trace.Tracer.StartSpan for parent and baggage
// semantics.
func (c *Client) StartSpan(ctx context.Context, name, spanType string, opts ...trace.StartOption) (context.Context, *trace.Span, error) {
	if c.closed.Load() {
		return ctx, nil, ErrClientClosed
	}
	newCtx, span := c.tracer.StartSpan(ctx, name, spanType, opts...)
	return newCtx, span, nil
}

// SpanFromContext returns the current span in ctx, or nil.
func (c *Client) SpanFromContext(ctx context.Context) *trace.Span {
	return trace.SpanFromContext(ctx)
}

// InjectHeaders serializes the current span's trace context into a header
// map for an outbound call. Without a current span it returns an empty map.
func (c *Client) InjectHeaders(ctx context.Context) map[string]string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return map[string]string{}
	}
	return c.propagator.Headers(span.Context())
}

// ExtractContext parses propagation headers from an inbound call and attaches
// the result to ctx as the remote parent for subsequent StartSpan calls.
// Missing or malformed headers leave ctx unchanged, so span creation starts a
// fresh trace.
func (c *Client) ExtractContext(ctx context.Context, headers map[string]string) context.Context {
	sc := c.propagator.Extract(headers)
	if !sc.IsValid() {
		return ctx
	}
	return trace.ContextWithRemote(ctx, sc)
}

// Flush synchronously drains the export queue, bounded by ctx and the
// configured flush timeout. Expensive; meant for shutdown and tests.
func (c *Client) Flush(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Trace.FlushTimeout)
	defer cancel()
	return c.processor.Flush(ctx)
}

// Shutdown drains the queue with a bounded wait and releases the transport.
// The client rejects all operations afterwards; a second call returns
// ErrClientClosed.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.closed.Swap(true) {
		return ErrClientClosed
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Trace.ShutdownTimeout)
	defer cancel()

	err := c.processor.Shutdown(ctx)
	c.logger.Info("client shut down")
	return err
}
