package trace

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"

	tracecollectorpb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tracekit/tracekit-go/internal/version"
)

// marshalExportRequest serializes one sub-batch to the OTLP binary protobuf
// trace-request format. All spans in the batch share one resource.
func marshalExportRequest(batch []SpanData, serviceName, workspaceID string) ([]byte, error) {
	spans := make([]*tracepb.Span, 0, len(batch))
	for i := range batch {
		spans = append(spans, toOTLPSpan(&batch[i]))
	}

	req := &tracecollectorpb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						stringKV("service.name", serviceName),
						stringKV("workspace.id", workspaceID),
						stringKV("telemetry.sdk.name", version.SDKName),
						stringKV("telemetry.sdk.language", version.Language),
						stringKV("telemetry.sdk.version", version.Version),
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{
					{
						Scope: &commonpb.InstrumentationScope{
							Name:    version.SDKName,
							Version: version.Version,
						},
						Spans: spans,
					},
				},
			},
		},
	}

	body, err := proto.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal trace request: %w", err)
	}
	return body, nil
}

func toOTLPSpan(d *SpanData) *tracepb.Span {
	span := &tracepb.Span{
		TraceId:           d.TraceID[:],
		SpanId:            d.SpanID[:],
		Name:              d.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: uint64(d.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(d.EndTime.UnixNano()),
		Attributes:        toOTLPAttributes(d.Attributes),
		TraceState:        traceStateString(d.TraceState),
		Status: &tracepb.Status{
			Code: tracepb.Status_STATUS_CODE_OK,
		},
	}
	if d.ParentSpanID.IsValid() {
		parent := d.ParentSpanID
		span.ParentSpanId = parent[:]
	}
	if d.StatusCode != 0 {
		span.Status.Code = tracepb.Status_STATUS_CODE_ERROR
		span.Status.Message = d.ErrorMessage
	}
	return span
}

// toOTLPAttributes converts the attribute map in key order so encoded output
// is deterministic.
func toOTLPAttributes(attrs map[string]Value) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*commonpb.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, &commonpb.KeyValue{Key: k, Value: toAnyValue(attrs[k])})
	}
	return out
}

func toAnyValue(v Value) *commonpb.AnyValue {
	switch v.Kind() {
	case KindInt64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v.Int64()}}
	case KindFloat64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v.Float64()}}
	case KindBool:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: v.Bool()}}
	case KindStringSlice:
		values := make([]*commonpb.AnyValue, 0, len(v.StringSlice()))
		for _, s := range v.StringSlice() {
			values = append(values, &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: s}})
		}
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_ArrayValue{
			ArrayValue: &commonpb.ArrayValue{Values: values},
		}}
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v.Str()}}
	}
}

func stringKV(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

// traceStateString renders trace-state entries in the w3c list form.
func traceStateString(entries []TraceStateEntry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Key+"="+e.Value)
	}
	return strings.Join(parts, ",")
}
