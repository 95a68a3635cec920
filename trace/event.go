package trace

import (
	"go.uber.org/zap"

	"github.com/tracekit/tracekit-go/internal/logging"
)

// FinishEventType identifies a delivery-pipeline observation point.
type FinishEventType string

const (
	// EventQueueEntry fires once per finished span, reporting whether the
	// span was accepted into the export queue.
	EventQueueEntry FinishEventType = "queue_manager.span_entry.rate"

	// EventSpanFlush fires once per export sub-batch, success or failure.
	EventSpanFlush FinishEventType = "exporter.span_flush.rate"
)

// FinishEventExtra carries queue-entry specific fields.
type FinishEventExtra struct {
	// IsRoot reports whether the finished span had no valid parent.
	IsRoot bool

	// LatencyMS is the span's start-to-finish latency in milliseconds.
	LatencyMS int64
}

// FinishEvent is one observation emitted by the export pipeline.
type FinishEvent struct {
	Type      FinishEventType
	Fail      bool
	ItemCount int
	Detail    string
	Extra     *FinishEventExtra
}

// FinishEventHandler receives pipeline events. Handlers run synchronously on
// the emitting goroutine (a producer for queue entries, the export worker for
// flushes) and must not block.
type FinishEventHandler func(event FinishEvent)

// LogFinishEvents returns a handler that writes events to the logger:
// failures at warn, the rest at debug.
func LogFinishEvents(logger *logging.Logger) FinishEventHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(e FinishEvent) {
		fields := []zap.Field{
			zap.String("event", string(e.Type)),
			zap.Bool("fail", e.Fail),
			zap.Int("items", e.ItemCount),
		}
		if e.Detail != "" {
			fields = append(fields, zap.String("detail", e.Detail))
		}
		if e.Extra != nil {
			fields = append(fields,
				zap.Bool("is_root", e.Extra.IsRoot),
				zap.Int64("latency_ms", e.Extra.LatencyMS))
		}
		if e.Fail {
			logger.Warn("span pipeline event", fields...)
			return
		}
		logger.Debug("span pipeline event", fields...)
	}
}

// CombineHandlers fans one event out to several handlers, skipping nils.
// Useful for pairing the logging handler with a metrics one.
func CombineHandlers(handlers ...FinishEventHandler) FinishEventHandler {
	active := make([]FinishEventHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			active = append(active, h)
		}
	}
	return func(e FinishEvent) {
		for _, h := range active {
			h(e)
		}
	}
}
