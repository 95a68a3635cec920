package trace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/tracekit/tracekit-go/auth"
	"github.com/tracekit/tracekit-go/internal/logging"
)

// ErrExporterShutdown is returned by Export after Shutdown.
var ErrExporterShutdown = errors.New("trace: exporter is shut down")

// DefaultExportBatchCap bounds one HTTP request's span count. Batches larger
// than this are split into independent sub-batch requests.
const DefaultExportBatchCap = 25

const (
	headerWorkspaceID = "tracekit-workspace-id"
	headerLogID       = "X-TT-LogID"
	contentTypeProto  = "application/x-protobuf"
)

// HTTPExporter posts span batches to the collector as OTLP binary protobuf.
// Each sub-batch is one request and one independent unit of failure: a failed
// sub-batch is reported and skipped, never retried, and never aborts its
// siblings.
type HTTPExporter struct {
	client      *resty.Client
	endpoint    string
	workspaceID string
	serviceName string
	provider    auth.Provider
	logger      *logging.Logger
	onFinish    FinishEventHandler
	batchCap    int
	envHeaders  map[string]string

	closed atomic.Bool
}

// ExporterOption configures an HTTPExporter.
type ExporterOption func(*HTTPExporter)

// WithExportBatchCap overrides the per-request span cap.
func WithExportBatchCap(n int) ExporterOption {
	return func(e *HTTPExporter) {
		if n > 0 {
			e.batchCap = n
		}
	}
}

// WithExporterLogger sets the exporter's logger.
func WithExporterLogger(l *logging.Logger) ExporterOption {
	return func(e *HTTPExporter) { e.logger = l }
}

// WithExportEventHandler installs a handler for per-sub-batch flush events.
func WithExportEventHandler(h FinishEventHandler) ExporterOption {
	return func(e *HTTPExporter) {
		if h != nil {
			e.onFinish = h
		}
	}
}

// WithServiceName sets the resource service name stamped on exported spans.
func WithServiceName(name string) ExporterOption {
	return func(e *HTTPExporter) { e.serviceName = name }
}

// NewHTTPExporter creates an exporter posting to endpoint, authenticating
// every request through provider.
func NewHTTPExporter(client *resty.Client, endpoint, workspaceID string, provider auth.Provider, opts ...ExporterOption) *HTTPExporter {
	e := &HTTPExporter{
		client:      client,
		endpoint:    endpoint,
		workspaceID: workspaceID,
		provider:    provider,
		logger:      logging.NewNop(),
		onFinish:    func(FinishEvent) {},
		batchCap:    DefaultExportBatchCap,
		envHeaders:  debugHeaders(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// debugHeaders maps routing overrides from the process environment onto
// request headers, for targeting non-production collector lanes.
func debugHeaders() map[string]string {
	h := make(map[string]string, 2)
	if env := os.Getenv("x_tt_env"); env != "" {
		h["x-tt-env"] = env
	}
	if ppe := os.Getenv("x_use_ppe"); ppe != "" {
		h["x-use-ppe"] = "1"
	}
	return h
}

// Export implements Exporter. The batch is split at the sub-batch cap; each
// chunk gets a fresh token and its own POST. The returned error aggregates
// chunk failures for logging; callers must not retry.
func (e *HTTPExporter) Export(ctx context.Context, batch []SpanData) error {
	if e.closed.Load() {
		return ErrExporterShutdown
	}
	if len(batch) == 0 {
		return nil
	}

	var errs []error
	for start := 0; start < len(batch); start += e.batchCap {
		end := start + e.batchCap
		if end > len(batch) {
			end = len(batch)
		}
		if err := e.exportChunk(ctx, batch[start:end]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *HTTPExporter) exportChunk(ctx context.Context, chunk []SpanData) error {
	token, err := e.provider.Token(ctx)
	if err != nil {
		err = fmt.Errorf("export: acquire token: %w", err)
		e.reportChunk(chunk, err)
		return err
	}

	body, err := marshalExportRequest(chunk, e.serviceName, e.workspaceID)
	if err != nil {
		err = fmt.Errorf("export: encode batch: %w", err)
		e.reportChunk(chunk, err)
		return err
	}

	req := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentTypeProto).
		SetHeader("Authorization", e.provider.Scheme()+" "+token).
		SetHeader(headerWorkspaceID, e.workspaceID).
		SetBody(body)
	for k, v := range e.envHeaders {
		req.SetHeader(k, v)
	}

	resp, err := req.Post(e.endpoint)
	if err != nil {
		err = fmt.Errorf("export: post: %w", err)
		e.reportChunk(chunk, err)
		return err
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		err = fmt.Errorf("export: collector returned %d: %s",
			resp.StatusCode(), strings.TrimSpace(resp.String()))
		e.reportChunk(chunk, err)
		return err
	}

	e.logger.Debug("span batch exported",
		zap.Int("spans", len(chunk)),
		zap.String("log_id", resp.Header().Get(headerLogID)))
	e.reportChunk(chunk, nil)
	return nil
}

// reportChunk emits the per-sub-batch flush event and, on failure, the warn
// log that accompanies it.
func (e *HTTPExporter) reportChunk(chunk []SpanData, err error) {
	event := FinishEvent{
		Type:      EventSpanFlush,
		ItemCount: len(chunk),
	}
	if err != nil {
		event.Fail = true
		event.Detail = err.Error()
		e.logger.Warn("span batch export failed",
			zap.Int("spans", len(chunk)), zap.Error(err))
	}
	e.onFinish(event)
}

// Shutdown implements Exporter: it rejects further exports and releases idle
// connections. In-flight requests are not cancelled.
func (e *HTTPExporter) Shutdown(context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	if hc := e.client.GetClient(); hc != nil {
		hc.CloseIdleConnections()
	}
	return nil
}
