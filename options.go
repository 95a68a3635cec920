package tracekit

import (
	"time"

	"go.uber.org/zap"

	"github.com/tracekit/tracekit-go/auth"
	"github.com/tracekit/tracekit-go/internal/config"
	"github.com/tracekit/tracekit-go/internal/logging"
	"github.com/tracekit/tracekit-go/trace"
)

// options collects construction-time overrides. Zero fields leave the
// environment-derived configuration untouched.
type options struct {
	workspaceID string
	serviceName string
	baseURL     string
	tracePath   string

	token          string
	jwtClientID    string
	jwtPrivateKey  string
	jwtPublicKeyID string
	provider       auth.Provider

	maxQueueSize  int
	batchSize     int
	scheduleDelay time.Duration
	batchCap      int

	logger        *logging.Logger
	finishHandler trace.FinishEventHandler
	headerMapping trace.HeaderMapping
}

func (o options) apply(cfg *config.Config) {
	if o.workspaceID != "" {
		cfg.WorkspaceID = o.workspaceID
	}
	if o.serviceName != "" {
		cfg.ServiceName = o.serviceName
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.tracePath != "" {
		cfg.TracePath = o.tracePath
	}
	if o.token != "" {
		cfg.Auth.Token = o.token
	}
	if o.jwtClientID != "" {
		cfg.Auth.JWTClientID = o.jwtClientID
		cfg.Auth.JWTPrivateKey = o.jwtPrivateKey
		cfg.Auth.JWTPublicKeyID = o.jwtPublicKeyID
	}
	if o.maxQueueSize > 0 {
		cfg.Trace.MaxQueueSize = o.maxQueueSize
	}
	if o.batchSize > 0 {
		cfg.Trace.BatchSize = o.batchSize
	}
	if o.scheduleDelay > 0 {
		cfg.Trace.ScheduleDelay = o.scheduleDelay
	}
	if o.batchCap > 0 {
		cfg.Trace.ExportBatchCap = o.batchCap
	}
}

// Option customizes client construction.
type Option func(*options)

// WithWorkspaceID sets the workspace all spans are exported into.
func WithWorkspaceID(id string) Option {
	return func(o *options) { o.workspaceID = id }
}

// WithServiceName sets the resource service name on exported spans.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithBaseURL points the client at a non-default collector.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithTracePath overrides the span ingest path on the collector.
func WithTracePath(path string) Option {
	return func(o *options) { o.tracePath = path }
}

// WithTokenAuth authenticates with a fixed API token.
func WithTokenAuth(token string) Option {
	return func(o *options) { o.token = token }
}

// WithJWTAuth authenticates by exchanging an RS256-signed assertion for an
// OAuth access token, refreshed automatically before expiry.
func WithJWTAuth(clientID, privateKeyPEM, publicKeyID string) Option {
	return func(o *options) {
		o.jwtClientID = clientID
		o.jwtPrivateKey = privateKeyPEM
		o.jwtPublicKeyID = publicKeyID
	}
}

// WithAuthProvider installs a caller-built credential provider, bypassing the
// built-in token and JWT paths.
func WithAuthProvider(p auth.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithMaxQueueSize bounds the export queue; spans beyond it are dropped.
func WithMaxQueueSize(n int) Option {
	return func(o *options) { o.maxQueueSize = n }
}

// WithBatchSize sets the span count that triggers an immediate flush.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithScheduleDelay sets the maximum time a span waits before flush.
func WithScheduleDelay(d time.Duration) Option {
	return func(o *options) { o.scheduleDelay = d }
}

// WithExportBatchCap bounds the span count per export HTTP request.
func WithExportBatchCap(n int) Option {
	return func(o *options) { o.batchCap = n }
}

// WithLogger installs a caller-supplied zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = logging.Wrap(l) }
}

// WithFinishEventHandler replaces the default log-based pipeline event
// handler. The handler runs synchronously on pipeline goroutines and must
// not block; see metrics.Collector for a Prometheus-backed one.
func WithFinishEventHandler(h trace.FinishEventHandler) Option {
	return func(o *options) { o.finishHandler = h }
}

// WithHeaderMapping renames the two propagation headers for gateways that
// rewrite them. Extraction still accepts the standard names.
func WithHeaderMapping(m trace.HeaderMapping) Option {
	return func(o *options) { o.headerMapping = m }
}
