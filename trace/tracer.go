package trace

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tracekit/tracekit-go/internal/id"
	"github.com/tracekit/tracekit-go/internal/logging"
)

// Tracer creates spans and routes finished spans into the export pipeline.
type Tracer struct {
	processor *Processor
	idGen     *id.Generator
	logger    *logging.Logger
	onFinish  FinishEventHandler
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerLogger sets the tracer's logger.
func WithTracerLogger(l *logging.Logger) TracerOption {
	return func(t *Tracer) { t.logger = l }
}

// WithFinishEventHandler installs a pipeline event handler. The handler runs
// synchronously and must not block.
func WithFinishEventHandler(h FinishEventHandler) TracerOption {
	return func(t *Tracer) {
		if h != nil {
			t.onFinish = h
		}
	}
}

// WithIDGenerator overrides the identifier source. For tests.
func WithIDGenerator(g *id.Generator) TracerOption {
	return func(t *Tracer) { t.idGen = g }
}

// NewTracer wires a tracer to a processor. The processor owns downstream
// delivery; the tracer only creates spans and enqueues finished records.
func NewTracer(processor *Processor, opts ...TracerOption) *Tracer {
	t := &Tracer{
		processor: processor,
		idGen:     id.Default(),
		logger:    logging.NewNop(),
		onFinish:  func(FinishEvent) {},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// startConfig collects per-span creation options.
type startConfig struct {
	startTime  time.Time
	parent     SpanContext
	hasParent  bool
	freshTrace bool
}

// StartOption customizes one StartSpan call.
type StartOption func(*startConfig)

// WithStartTime backdates the span's start.
func WithStartTime(t time.Time) StartOption {
	return func(c *startConfig) { c.startTime = t }
}

// WithParent uses an explicit parent context instead of the one found in ctx.
func WithParent(sc SpanContext) StartOption {
	return func(c *startConfig) {
		c.parent = sc
		c.hasParent = true
	}
}

// WithFreshTrace starts a new root trace even when ctx carries a parent.
func WithFreshTrace() StartOption {
	return func(c *startConfig) { c.freshTrace = true }
}

// StartSpan creates a span named name with the given type tag. The parent is
// resolved, in order, from the WithParent option, the current span in ctx, or
// a remote context extracted from wire headers; absent all three a new root
// trace begins. The parent's baggage is snapshotted at this moment: baggage
// the parent sets later is invisible to this span. Any inherited baggage is
// also copied onto the new span's attributes.
//
// The returned context carries the new span as current; pass it to downstream
// calls so their spans nest correctly.
func (t *Tracer) StartSpan(ctx context.Context, name, spanType string, opts ...StartOption) (context.Context, *Span) {
	cfg := startConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.startTime.IsZero() {
		cfg.startTime = time.Now()
	}
	if spanType == "" {
		spanType = SpanTypeCustom
	}

	parent, ok := t.resolveParent(ctx, cfg)

	spanID := t.idGen.NewSpanID()
	var sc SpanContext
	var parentSpanID SpanID
	if ok {
		sc = parent.withIdentity(parent.TraceID(), SpanID(spanID))
		parentSpanID = parent.SpanID()
	} else {
		sc = NewSpanContext(TraceID(t.idGen.NewTraceID()), SpanID(spanID), true, nil)
	}

	span := &Span{
		tracer:       t,
		sc:           sc,
		parentSpanID: parentSpanID,
		name:         name,
		spanType:     spanType,
		start:        cfg.startTime,
		attrs:        make(map[string]Value, 8),
	}
	span.attrs[KeySpanType] = StringValue(spanType)
	for k, v := range sc.Baggage() {
		span.attrs[k] = StringValue(v)
	}

	t.logger.Debug("span started",
		zap.String("name", name),
		zap.String("span_type", spanType),
		zap.Stringer("trace_id", sc.TraceID()),
		zap.Stringer("span_id", sc.SpanID()),
		zap.Bool("root", !parentSpanID.IsValid()))

	return ContextWithSpan(ctx, span), span
}

// resolveParent picks the effective parent context for a new span.
func (t *Tracer) resolveParent(ctx context.Context, cfg startConfig) (SpanContext, bool) {
	if cfg.freshTrace {
		return SpanContext{}, false
	}
	if cfg.hasParent {
		if cfg.parent.IsValid() {
			return cfg.parent, true
		}
		return SpanContext{}, false
	}
	if span := SpanFromContext(ctx); span != nil {
		if sc := span.Context(); sc.IsValid() {
			return sc, true
		}
	}
	if remote, ok := RemoteFromContext(ctx); ok && remote.IsValid() {
		return remote, true
	}
	return SpanContext{}, false
}

// finishSpan enqueues the frozen record and reports the queue-entry outcome.
func (t *Tracer) finishSpan(data SpanData) {
	accepted := t.processor.Enqueue(data)
	if !accepted {
		t.logger.Warn("span dropped, export queue full",
			zap.Stringer("trace_id", data.TraceID),
			zap.Stringer("span_id", data.SpanID))
	}

	detail := ""
	if !accepted {
		detail = "export queue full"
	}
	t.onFinish(FinishEvent{
		Type:      EventQueueEntry,
		Fail:      !accepted,
		ItemCount: 1,
		Detail:    detail,
		Extra: &FinishEventExtra{
			IsRoot:    data.IsRoot(),
			LatencyMS: data.EndTime.Sub(data.StartTime).Milliseconds(),
		},
	})
}
