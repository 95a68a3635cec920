package trace

// Well-known attribute keys. Setting any of these through the typed span
// setters keeps exported spans consistent with the collector's schema.
const (
	KeySpanType         = "span_type"
	KeyInput            = "input"
	KeyOutput           = "output"
	KeyError            = "error"
	KeyRuntime          = "runtime"
	KeyLatencyFirstResp = "latency_first_resp"
	KeyCallType         = "call_type"

	KeyUserID    = "user_id"
	KeyMessageID = "message_id"
	KeyThreadID  = "thread_id"

	KeyCallOptions   = "call_options"
	KeyModelProvider = "model_provider"
	KeyModelName     = "model_name"
	KeyInputTokens   = "input_tokens"
	KeyOutputTokens  = "output_tokens"
	KeyTokens        = "tokens"
	KeyStream        = "stream"

	KeyPromptKey      = "prompt_key"
	KeyPromptVersion  = "prompt_version"
	KeyPromptProvider = "prompt_provider"

	KeyRetrieverProvider = "retriever_provider"
	KeyToolCallID        = "tool_call_id"

	KeyLogID = "log_id"
)

// Built-in span types.
const (
	SpanTypeCustom    = "custom"
	SpanTypeModel     = "model"
	SpanTypePrompt    = "prompt"
	SpanTypeRetriever = "retriever"
	SpanTypeTool      = "tool"
)

// StatusCodeError is the status recorded when an error is set without an
// explicit code.
const StatusCodeError = -1
