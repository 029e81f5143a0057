package llamaclient

import (
	"errors"
	"fmt"
)

// ErrUnsupportedTask is returned for declared task types that have no wire
// mapping against the backing server.
var ErrUnsupportedTask = errors.New("task type has no backing-server mapping")

// ErrTokenizeDegraded marks a tokenize failure that was replaced by an empty
// token list. It is logged and counted, never returned from Generate.
var ErrTokenizeDegraded = errors.New("tokenize degraded to zero tokens")

// transportError wraps a failure to reach the backing server at all.
type transportError struct {
	endpoint string
	err      error
}

func (e transportError) Error() string {
	return fmt.Sprintf("backing server %s: %v", e.endpoint, e.err)
}

func (e transportError) Unwrap() error { return e.err }

// IsTransport reports whether err means the backing server could not be reached.
func IsTransport(err error) bool {
	var te transportError
	return errors.As(err, &te)
}

// UpstreamError describes a non-200 reply from the backing server. It is
// recorded on the result rather than returned.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("backing server %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// tokenizeError records why tokenize degraded.
type tokenizeError struct {
	reason string
	status int
	err    error
}

func (e tokenizeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("tokenize %s: %v", e.reason, e.err)
	}
	return fmt.Sprintf("tokenize %s: status %d", e.reason, e.status)
}

func (e tokenizeError) Unwrap() error { return ErrTokenizeDegraded }

// Degradation reasons used as metric labels.
const (
	reasonStatus500   = "status_500"
	reasonStatusOther = "status_other"
	reasonTransport   = "transport"
	reasonDecode      = "decode"
)
