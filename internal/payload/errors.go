package payload

import (
	"encoding/json"
	"errors"

	"scoringd/pkg/types"
)

// Literal examples embedded in RequestFormatError messages.
const (
	chatInputExample = `{"input_data": {"input_string": [{"role":"user", "content": "str1"}, ` +
		`{"role": "assistant", "content": "str2"} ....], "parameters": {"k1":"v1", "k2":"v2"}}}`
	textInputExample = `{"input_data": ["str1", "str2", ...], "params": {"k1":"v1", "k2":"v2"}}`
)

// RequestFormatError reports a malformed inbound request. Its message is a
// JSON object carrying a corrective example and the original failure text.
type RequestFormatError struct {
	// Example is a literal request in the expected shape for the nominal task.
	Example string
	// Cause is the underlying parse failure.
	Cause error
}

func newFormatError(nominal types.TaskType, cause error) *RequestFormatError {
	ex := textInputExample
	if nominal == types.TaskConversational {
		ex = chatInputExample
	}
	return &RequestFormatError{Example: ex, Cause: cause}
}

// Response returns the outward JSON body for this error.
func (e *RequestFormatError) Response() types.FormatErrorResponse {
	exc := ""
	if e.Cause != nil {
		exc = e.Cause.Error()
	}
	return types.FormatErrorResponse{
		Error:     "Expected input format: \n" + e.Example,
		Exception: exc,
	}
}

func (e *RequestFormatError) Error() string {
	b, err := json.Marshal(e.Response())
	if err != nil {
		return "invalid request format"
	}
	return string(b)
}

func (e *RequestFormatError) Unwrap() error { return e.Cause }

// IsRequestFormat reports whether err is (or wraps) a RequestFormatError.
func IsRequestFormat(err error) bool {
	var fe *RequestFormatError
	return errors.As(err, &fe)
}

// Parse failure causes.
var (
	errInvalidJSON     = errors.New("request body is not a JSON object")
	errQueryNotList    = errors.New("query is not a list")
	errParamsNotMap    = errors.New("parameters is not a dict")
	errInputNotObject  = errors.New("invalid input data")
	errMissingInputKey = errors.New("missing required key: input_string")
)
