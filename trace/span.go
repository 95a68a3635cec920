package trace

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/tracekit/tracekit-go/internal/version"
)

// SpanData is the immutable record handed to the export pipeline when a span
// finishes. All maps are owned by the record and never mutated afterwards.
type SpanData struct {
	TraceID      TraceID
	SpanID       SpanID
	ParentSpanID SpanID

	Name     string
	SpanType string

	StartTime time.Time
	EndTime   time.Time

	Attributes map[string]Value
	Baggage    map[string]string
	TraceState []TraceStateEntry

	StatusCode   int32
	ErrorMessage string
	ErrorStack   string
}

// IsRoot reports whether the span had no valid parent.
func (d SpanData) IsRoot() bool {
	return !d.ParentSpanID.IsValid()
}

// Span is one unit of work under construction. All mutators are safe for
// concurrent use and become no-ops after Finish. Setters silently ignore
// empty keys and invalid values so instrumentation call sites never need
// error handling.
type Span struct {
	tracer *Tracer

	mu           sync.Mutex
	sc           SpanContext
	parentSpanID SpanID
	name         string
	spanType     string
	start        time.Time
	firstResp    time.Time
	attrs        map[string]Value
	statusCode   int32
	statusSet    bool
	errMsg       string
	errStack     string
	finished     bool
}

// Context returns the span's current trace context. The returned value is a
// snapshot: later SetBaggage calls on the span do not alter it.
func (s *Span) Context() SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc
}

// TraceID returns the span's trace identifier.
func (s *Span) TraceID() TraceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc.TraceID()
}

// SpanID returns the span's identifier.
func (s *Span) SpanID() SpanID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc.SpanID()
}

// Name returns the operation name.
func (s *Span) Name() string {
	return s.name
}

// SetTag records one attribute. Empty keys and nil values are ignored.
func (s *Span) SetTag(key string, value interface{}) {
	s.setAttr(key, valueOf(value))
}

func (s *Span) setAttr(key string, v Value) {
	if key == "" || !v.IsValid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.attrs[key] = v
}

// SetInput records the operation input. Non-string values are serialized to
// JSON; values that cannot be serialized are ignored.
func (s *Span) SetInput(input interface{}) {
	s.setAttr(KeyInput, jsonValue(input))
}

// SetOutput records the operation output, with the same serialization rules
// as SetInput.
func (s *Span) SetOutput(output interface{}) {
	s.setAttr(KeyOutput, jsonValue(output))
}

func jsonValue(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	default:
		raw, err := sonic.MarshalString(v)
		if err != nil {
			return Value{}
		}
		return StringValue(raw)
	}
}

// SetError records an error message with the calling stack. If no status code
// was set explicitly, the status defaults to StatusCodeError.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	stack := string(debug.Stack())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.errMsg = err.Error()
	s.errStack = stack
	s.attrs[KeyError] = StringValue(s.errMsg)
	if !s.statusSet {
		s.statusCode = StatusCodeError
	}
}

// SetStatusCode records an explicit status. Zero means OK.
func (s *Span) SetStatusCode(code int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.statusCode = code
	s.statusSet = true
}

// SetBaggage records the entry as a span attribute and derives a new trace
// context carrying it. Children created from this span after the call inherit
// the entry; children created before do not.
func (s *Span) SetBaggage(key, value string) {
	if key == "" || value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.attrs[key] = StringValue(value)
	s.sc = s.sc.WithBaggage(key, value)
}

// SetStartTimeFirstResp records when the first response byte was observed,
// used at finish to derive the first-response latency.
func (s *Span) SetStartTimeFirstResp(t time.Time) {
	if t.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.firstResp = t
}

// SetUserID tags the span with the acting user.
func (s *Span) SetUserID(userID string) {
	s.setAttr(KeyUserID, StringValue(userID))
}

// SetUserIDBaggage tags the span and propagates the user id to descendants.
func (s *Span) SetUserIDBaggage(userID string) {
	s.SetBaggage(KeyUserID, userID)
}

// SetMessageID tags the span with the message being processed.
func (s *Span) SetMessageID(messageID string) {
	s.setAttr(KeyMessageID, StringValue(messageID))
}

// SetMessageIDBaggage tags the span and propagates the message id.
func (s *Span) SetMessageIDBaggage(messageID string) {
	s.SetBaggage(KeyMessageID, messageID)
}

// SetThreadID tags the span with the conversation thread.
func (s *Span) SetThreadID(threadID string) {
	s.setAttr(KeyThreadID, StringValue(threadID))
}

// SetThreadIDBaggage tags the span and propagates the thread id.
func (s *Span) SetThreadIDBaggage(threadID string) {
	s.SetBaggage(KeyThreadID, threadID)
}

// SetModelProvider tags a model-type span with its provider.
func (s *Span) SetModelProvider(provider string) {
	s.setAttr(KeyModelProvider, StringValue(provider))
}

// SetModelName tags a model-type span with the model identifier.
func (s *Span) SetModelName(name string) {
	s.setAttr(KeyModelName, StringValue(name))
}

// SetInputTokens records prompt token usage. When both input and output
// token counts are present, the total is derived automatically.
func (s *Span) SetInputTokens(n int64) {
	s.setTokens(KeyInputTokens, n)
}

// SetOutputTokens records completion token usage; see SetInputTokens.
func (s *Span) SetOutputTokens(n int64) {
	s.setTokens(KeyOutputTokens, n)
}

func (s *Span) setTokens(key string, n int64) {
	if n < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.attrs[key] = Int64Value(n)
	in, inOK := s.attrs[KeyInputTokens]
	out, outOK := s.attrs[KeyOutputTokens]
	if inOK && outOK {
		s.attrs[KeyTokens] = Int64Value(in.Int64() + out.Int64())
	}
}

// SetCallOptions records the model invocation parameters (temperature, top_p,
// max_tokens, stop sequences and the like) as one JSON attribute.
func (s *Span) SetCallOptions(opts interface{}) {
	s.setAttr(KeyCallOptions, jsonValue(opts))
}

// SetStream marks whether the model response was streamed.
func (s *Span) SetStream(stream bool) {
	s.setAttr(KeyStream, BoolValue(stream))
}

// SetLogID records the collector-assigned log id for correlation.
func (s *Span) SetLogID(logID string) {
	s.setAttr(KeyLogID, StringValue(logID))
}

// SetTags records a batch of attributes, skipping empty keys and nil values.
func (s *Span) SetTags(tags map[string]interface{}) {
	for k, v := range tags {
		s.setAttr(k, valueOf(v))
	}
}

// SetCallType tags the span with the caller-defined invocation category.
func (s *Span) SetCallType(callType string) {
	s.setAttr(KeyCallType, StringValue(callType))
}

// SetPrompt tags a prompt-type span with the prompt identity.
func (s *Span) SetPrompt(key, promptVersion string) {
	s.setAttr(KeyPromptKey, StringValue(key))
	s.setAttr(KeyPromptVersion, StringValue(promptVersion))
}

// runtimeDescriptor is the JSON document stamped under the runtime key at
// finish, identifying the emitting SDK.
type runtimeDescriptor struct {
	Language   string `json:"language"`
	Scene      string `json:"scene"`
	SDKVersion string `json:"sdk_version"`
}

func runtimeAttr() Value {
	raw, err := sonic.MarshalString(runtimeDescriptor{
		Language:   version.Language,
		Scene:      version.Scene,
		SDKVersion: version.Version,
	})
	if err != nil {
		return StringValue(fmt.Sprintf(`{"language":%q}`, version.Language))
	}
	return StringValue(raw)
}

// Finish stamps the end time, derives final attributes, freezes the span into
// an immutable record, and hands it to the export pipeline. Only the first
// call has any effect; the span rejects all mutation afterwards.
func (s *Span) Finish() {
	end := time.Now()

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true

	if !s.firstResp.IsZero() && s.firstResp.After(s.start) {
		s.attrs[KeyLatencyFirstResp] = Int64Value(s.firstResp.Sub(s.start).Microseconds())
	}
	s.attrs[KeyRuntime] = runtimeAttr()

	attrs := make(map[string]Value, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	data := SpanData{
		TraceID:      s.sc.TraceID(),
		SpanID:       s.sc.SpanID(),
		ParentSpanID: s.parentSpanID,
		Name:         s.name,
		SpanType:     s.spanType,
		StartTime:    s.start,
		EndTime:      end,
		Attributes:   attrs,
		Baggage:      s.sc.Baggage(),
		TraceState:   s.sc.TraceState(),
		StatusCode:   s.statusCode,
		ErrorMessage: s.errMsg,
		ErrorStack:   s.errStack,
	}
	s.mu.Unlock()

	s.tracer.finishSpan(data)
}
