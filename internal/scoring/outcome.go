package scoring

import (
	"net/http"

	"scoringd/pkg/types"
)

// Kind classifies the result of one scoring cycle.
type Kind int

const (
	KindSuccess Kind = iota
	KindValidationFailure
	KindUpstreamFailure
	KindInternalFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindValidationFailure:
		return "validation_failure"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindInternalFailure:
		return "internal_failure"
	}
	return "unknown"
}

// Outcome is the typed result of Service.Score. Body is the outward JSON
// value; Results carry stamped per-call statistics with generated tokens
// already cleared.
type Outcome struct {
	Kind      Kind
	Body      any
	Results   []types.InferenceResult
	Err       error
	RequestID string
	TaskType  types.TaskType
}

// StatusCode maps the outcome kind to an HTTP status.
func (o Outcome) StatusCode() int {
	switch o.Kind {
	case KindSuccess:
		return http.StatusOK
	case KindValidationFailure:
		return http.StatusBadRequest
	case KindUpstreamFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// emptyBody is the legacy response for internal failures.
func emptyBody() map[string]any { return map[string]any{} }
