package trace

import (
	"context"
	"encoding/hex"
)

// TraceID is a 128-bit trace identifier.
type TraceID [16]byte

// SpanID is a 64-bit span identifier.
type SpanID [8]byte

// IsValid reports whether the trace id is non-zero.
func (t TraceID) IsValid() bool {
	return t != TraceID{}
}

// String returns the lowercase hex form of the trace id.
func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// IsValid reports whether the span id is non-zero.
func (s SpanID) IsValid() bool {
	return s != SpanID{}
}

// String returns the lowercase hex form of the span id.
func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// ParseTraceID parses a 32-character hex trace id.
func ParseTraceID(s string) (TraceID, bool) {
	var t TraceID
	if len(s) != 32 {
		return t, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return t, false
	}
	copy(t[:], b)
	return t, t.IsValid()
}

// ParseSpanID parses a 16-character hex span id.
func ParseSpanID(s string) (SpanID, bool) {
	var id SpanID
	if len(s) != 16 {
		return id, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, false
	}
	copy(id[:], b)
	return id, id.IsValid()
}

// TraceStateEntry is one vendor entry of the trace state list.
type TraceStateEntry struct {
	Key   string
	Value string
}

// SpanContext is an immutable snapshot of a span's position in a trace:
// trace id, span id, sampling decision, trace state, and baggage. The zero
// value is an invalid (root-less) context. All "mutating" operations return a
// new value, so a SpanContext can be read concurrently without coordination.
type SpanContext struct {
	traceID TraceID
	spanID  SpanID
	sampled bool
	state   []TraceStateEntry
	baggage map[string]string
}

// NewSpanContext assembles a span context from explicit parts. The baggage
// map is copied.
func NewSpanContext(traceID TraceID, spanID SpanID, sampled bool, baggage map[string]string) SpanContext {
	return SpanContext{
		traceID: traceID,
		spanID:  spanID,
		sampled: sampled,
		baggage: copyBaggage(baggage),
	}
}

// TraceID returns the trace identifier.
func (sc SpanContext) TraceID() TraceID { return sc.traceID }

// SpanID returns the span identifier.
func (sc SpanContext) SpanID() SpanID { return sc.spanID }

// Sampled reports the sampling flag.
func (sc SpanContext) Sampled() bool { return sc.sampled }

// IsValid reports whether the context carries a usable trace identity.
func (sc SpanContext) IsValid() bool {
	return sc.traceID.IsValid() && sc.spanID.IsValid()
}

// TraceState returns a copy of the trace-state entries.
func (sc SpanContext) TraceState() []TraceStateEntry {
	if len(sc.state) == 0 {
		return nil
	}
	out := make([]TraceStateEntry, len(sc.state))
	copy(out, sc.state)
	return out
}

// Baggage returns a copy of the baggage mapping.
func (sc SpanContext) Baggage() map[string]string {
	return copyBaggage(sc.baggage)
}

// BaggageValue looks up one baggage entry.
func (sc SpanContext) BaggageValue(key string) (string, bool) {
	v, ok := sc.baggage[key]
	return v, ok
}

// WithBaggage returns a new context with the entry added. The receiver is
// unchanged; contexts already held by other spans or goroutines never see
// the update. Empty key or value returns the receiver unchanged.
func (sc SpanContext) WithBaggage(key, value string) SpanContext {
	if key == "" || value == "" {
		return sc
	}
	next := sc
	next.baggage = copyBaggage(sc.baggage)
	if next.baggage == nil {
		next.baggage = make(map[string]string, 1)
	}
	next.baggage[key] = value
	return next
}

// withIdentity returns a copy of sc re-pointed at a new span identity,
// keeping sampling, state, and baggage. Used when deriving a child context.
func (sc SpanContext) withIdentity(traceID TraceID, spanID SpanID) SpanContext {
	next := sc
	next.traceID = traceID
	next.spanID = spanID
	next.baggage = copyBaggage(sc.baggage)
	return next
}

func copyBaggage(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type contextKey int

const (
	spanKey contextKey = iota
	remoteKey
)

// ContextWithSpan returns a context carrying the span as the current span
// for child creation.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}

// ContextWithRemote returns a context carrying a remote parent extracted from
// wire headers.
func ContextWithRemote(ctx context.Context, sc SpanContext) context.Context {
	return context.WithValue(ctx, remoteKey, sc)
}

// RemoteFromContext returns the remote parent context, if any.
func RemoteFromContext(ctx context.Context) (SpanContext, bool) {
	sc, ok := ctx.Value(remoteKey).(SpanContext)
	return sc, ok
}
