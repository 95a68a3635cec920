package tracekit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	tracecollectorpb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tracekit/tracekit-go/trace"
)

// testCollector accepts export requests and decodes the spans.
type testCollector struct {
	mu     sync.Mutex
	spans  []*tracepb.Span
	server *httptest.Server
}

func newTestCollector(t *testing.T) *testCollector {
	t.Helper()
	c := &testCollector{}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req tracecollectorpb.ExportTraceServiceRequest
		require.NoError(t, proto.Unmarshal(body, &req))

		c.mu.Lock()
		for _, rs := range req.ResourceSpans {
			for _, ss := range rs.ScopeSpans {
				c.spans = append(c.spans, ss.Spans...)
			}
		}
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(c.server.Close)
	return c
}

func (c *testCollector) byName() map[string]*tracepb.Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*tracepb.Span, len(c.spans))
	for _, s := range c.spans {
		out[s.Name] = s
	}
	return out
}

func newTestClient(t *testing.T, collector *testCollector, opts ...Option) *Client {
	t.Helper()
	base := append([]Option{
		WithWorkspaceID("ws-test"),
		WithTokenAuth("tok"),
		WithBaseURL(collector.server.URL),
		WithTracePath("/traces"),
		WithServiceName("test-svc"),
	}, opts...)
	client, err := New(base...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })
	return client
}

func TestNewValidation(t *testing.T) {
	t.Setenv("TRACEKIT_WORKSPACE_ID", "")
	t.Setenv("TRACEKIT_API_TOKEN", "")

	t.Run("MissingWorkspaceID", func(t *testing.T) {
		_, err := New(WithTokenAuth("tok"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		_, err := New(WithWorkspaceID("ws"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("BrokenJWTKey", func(t *testing.T) {
		_, err := New(
			WithWorkspaceID("ws"),
			WithJWTAuth("cid", "not a key", "kid"),
		)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestClientLifecycle(t *testing.T) {
	collector := newTestCollector(t)
	client := newTestClient(t, collector)

	ctx, span, err := client.StartSpan(context.Background(), "root", trace.SpanTypeCustom)
	require.NoError(t, err)
	require.NotNil(t, span)
	assert.Same(t, span, client.SpanFromContext(ctx))

	span.Finish()
	require.NoError(t, client.Flush(context.Background()))

	spans := collector.byName()
	require.Contains(t, spans, "root")

	require.NoError(t, client.Shutdown(context.Background()))

	t.Run("ClosedClientRejectsOperations", func(t *testing.T) {
		_, _, err := client.StartSpan(context.Background(), "late", trace.SpanTypeCustom)
		assert.ErrorIs(t, err, ErrClientClosed)
		assert.ErrorIs(t, client.Flush(context.Background()), ErrClientClosed)
		assert.ErrorIs(t, client.Shutdown(context.Background()), ErrClientClosed)
	})
}

func TestClientBaggagePropagationScenario(t *testing.T) {
	collector := newTestCollector(t)
	client := newTestClient(t, collector)

	ctx, spanA, err := client.StartSpan(context.Background(), "A", trace.SpanTypeCustom)
	require.NoError(t, err)
	spanA.SetBaggage("user_id", "u1")

	ctxB, spanB, err := client.StartSpan(ctx, "B", trace.SpanTypeModel)
	require.NoError(t, err)

	_, spanEarly, err := client.StartSpan(ctxB, "early", trace.SpanTypeCustom)
	require.NoError(t, err)

	spanB.SetBaggage("session_id", "s1")
	_, spanLate, err := client.StartSpan(ctxB, "late", trace.SpanTypeCustom)
	require.NoError(t, err)

	for _, s := range []*trace.Span{spanLate, spanEarly, spanB, spanA} {
		s.Finish()
	}
	require.NoError(t, client.Flush(context.Background()))

	spans := collector.byName()
	require.Len(t, spans, 4)

	attrOf := func(span *tracepb.Span, key string) (string, bool) {
		for _, kv := range span.Attributes {
			if kv.Key == key {
				return kv.Value.GetStringValue(), true
			}
		}
		return "", false
	}

	v, ok := attrOf(spans["B"], "user_id")
	require.True(t, ok, "baggage set on A before B's creation must reach B")
	assert.Equal(t, "u1", v)

	_, ok = attrOf(spans["early"], "session_id")
	assert.False(t, ok, "baggage set on B after early's creation must not reach early")

	v, ok = attrOf(spans["late"], "session_id")
	require.True(t, ok)
	assert.Equal(t, "s1", v)

	assert.Equal(t, spans["A"].TraceId, spans["late"].TraceId)
	assert.Equal(t, spans["A"].SpanId, spans["B"].ParentSpanId)
}

func TestClientHeaderPropagation(t *testing.T) {
	collector := newTestCollector(t)
	client := newTestClient(t, collector)

	ctx, span, err := client.StartSpan(context.Background(), "caller", trace.SpanTypeCustom)
	require.NoError(t, err)
	span.SetBaggage("user_id", "u1")

	headers := client.InjectHeaders(ctx)
	require.Contains(t, headers, "traceparent")
	require.Contains(t, headers, "baggage")

	// Receiving side, as another service would do it.
	serverCtx := client.ExtractContext(context.Background(), headers)
	_, serverSpan, err := client.StartSpan(serverCtx, "callee", trace.SpanTypeCustom)
	require.NoError(t, err)

	assert.Equal(t, span.TraceID(), serverSpan.TraceID())
	v, ok := serverSpan.Context().BaggageValue("user_id")
	require.True(t, ok)
	assert.Equal(t, "u1", v)

	t.Run("NoSpanInContext", func(t *testing.T) {
		assert.Empty(t, client.InjectHeaders(context.Background()))
	})

	t.Run("MalformedHeadersStartFreshTrace", func(t *testing.T) {
		ctx := client.ExtractContext(context.Background(), map[string]string{
			"traceparent": "garbage",
		})
		_, fresh, err := client.StartSpan(ctx, "fresh", trace.SpanTypeCustom)
		require.NoError(t, err)
		assert.NotEqual(t, span.TraceID(), fresh.TraceID())
	})
}

func TestClientHeaderMapping(t *testing.T) {
	collector := newTestCollector(t)
	client := newTestClient(t, collector, WithHeaderMapping(trace.HeaderMapping{
		TraceParent: "x-gw-traceparent",
		Baggage:     "x-gw-baggage",
	}))

	ctx, span, err := client.StartSpan(context.Background(), "caller", trace.SpanTypeCustom)
	require.NoError(t, err)
	span.SetBaggage("user_id", "u1")

	headers := client.InjectHeaders(ctx)
	assert.Contains(t, headers, "x-gw-traceparent")
	assert.NotContains(t, headers, "traceparent")

	serverCtx := client.ExtractContext(context.Background(), headers)
	_, serverSpan, err := client.StartSpan(serverCtx, "callee", trace.SpanTypeCustom)
	require.NoError(t, err)
	assert.Equal(t, span.TraceID(), serverSpan.TraceID())
}

func TestClientFinishEventHandler(t *testing.T) {
	collector := newTestCollector(t)

	var mu sync.Mutex
	counts := map[trace.FinishEventType]int{}
	client := newTestClient(t, collector, WithFinishEventHandler(func(e trace.FinishEvent) {
		mu.Lock()
		defer mu.Unlock()
		counts[e.Type]++
	}))

	_, span, err := client.StartSpan(context.Background(), "op", trace.SpanTypeCustom)
	require.NoError(t, err)
	span.Finish()
	require.NoError(t, client.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts[trace.EventQueueEntry])
	assert.Equal(t, 1, counts[trace.EventSpanFlush])
}
