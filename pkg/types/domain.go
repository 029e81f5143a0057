package types

import "strings"

// TaskType selects the wire shape used against the backing server and the
// outward response shape.
type TaskType string

const (
	TaskTextGeneration               TaskType = "text-generation"
	TaskConversational               TaskType = "conversational"
	TaskTextToImage                  TaskType = "text-to-image"
	TaskTextClassification           TaskType = "text-classification"
	TaskTextClassificationMultilabel TaskType = "text-classification-multilabel"
	TaskNER                          TaskType = "text-named-entity-recognition"
	TaskSummarization                TaskType = "text-summarization"
	TaskQnA                          TaskType = "question-answering"
	TaskTranslation                  TaskType = "text-translation"
	TaskTextGenerationCode           TaskType = "text-generation-code"
	TaskFillMask                     TaskType = "fill-mask"
	TaskTextToImageInpainting        TaskType = "text-to-image-inpainting"
)

// ChatCompletionAlias is the inbound identifier clients use for
// conversational requests. It never survives normalization.
const ChatCompletionAlias = "chat-completion"

// knownTasks lists every declared task identifier. Only text generation and
// conversational have a wire mapping.
var knownTasks = map[TaskType]struct{}{
	TaskTextGeneration:               {},
	TaskConversational:               {},
	TaskTextToImage:                  {},
	TaskTextClassification:           {},
	TaskTextClassificationMultilabel: {},
	TaskNER:                          {},
	TaskSummarization:                {},
	TaskQnA:                          {},
	TaskTranslation:                  {},
	TaskTextGenerationCode:           {},
	TaskFillMask:                     {},
	TaskTextToImageInpainting:        {},
}

// ParseTaskType maps an inbound identifier to a TaskType. An empty identifier
// means text generation; "chat-completion" is an alias of conversational.
func ParseTaskType(s string) (TaskType, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return TaskTextGeneration, true
	case ChatCompletionAlias:
		return TaskConversational, true
	}
	t := TaskType(s)
	_, ok := knownTasks[t]
	return t, ok
}

// HasWireMapping reports whether the protocol adapter knows how to call the
// backing server for this task.
func (t TaskType) HasWireMapping() bool {
	return t == TaskTextGeneration || t == TaskConversational
}

func (t TaskType) String() string { return string(t) }

// RequestPayload is the canonical request, independent of inbound dialect.
// Query is always a sequence and Params is never nil once normalized.
type RequestPayload struct {
	// Prompts as strings, or role/content message objects for conversational input.
	Query []any `json:"query"`
	// Forwarded to the backing server minus side-channel keys.
	Params   map[string]any `json:"params"`
	TaskType TaskType       `json:"task_type"`
	// Records whether the legacy {"input_string", "parameters"} dialect was used.
	IsLegacyFormat bool `json:"is_legacy_format"`
}

// InferenceResult is the outcome of one backing-server call. Exactly one of
// Response and Error is set.
type InferenceResult struct {
	Response             *string  `json:"response,omitempty"`
	InferenceTimeMs      *float64 `json:"inference_time_ms,omitempty"`
	TimePerTokenMs       *float64 `json:"time_per_token_ms,omitempty"`
	PromptIndex          *int     `json:"prompt_index,omitempty"`
	GeneratedTokens      []any    `json:"generated_tokens,omitempty"`
	Error                *string  `json:"error,omitempty"`
	PromptTokenCount     *int     `json:"prompt_token_count,omitempty"`
	CompletionTokenCount *int     `json:"completion_token_count,omitempty"`
}

// Failed reports whether the result carries an error instead of a response.
func (r InferenceResult) Failed() bool { return r.Error != nil }

// Text returns the response text or "" when unset.
func (r InferenceResult) Text() string {
	if r.Response == nil {
		return ""
	}
	return *r.Response
}

// ErrorText returns the error message or "" when unset.
func (r InferenceResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// ClearGeneratedTokens drops the token list before the result leaves the process.
func (r *InferenceResult) ClearGeneratedTokens() { r.GeneratedTokens = nil }
