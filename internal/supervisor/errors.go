package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// ErrStartupTimeout is returned when the backing server never became reachable
// within the configured wait. It is fatal to the service instance.
var ErrStartupTimeout = errors.New("server startup timeout")

// ErrServerExited is returned when the spawned process exits before it ever
// became reachable.
var ErrServerExited = errors.New("server exited before ready")

// startupTimeoutError carries the address and bound for diagnostics.
type startupTimeoutError struct {
	addr  string
	after time.Duration
}

func (e startupTimeoutError) Error() string {
	return fmt.Sprintf("server at %s did not become healthy within %s", e.addr, e.after)
}

func (e startupTimeoutError) Unwrap() error { return ErrStartupTimeout }

// serverExitedError carries the exit cause and a tail of stderr.
type serverExitedError struct {
	pid  int
	err  error
	tail string
}

func (e serverExitedError) Error() string {
	cause := "clean exit"
	if e.err != nil {
		cause = e.err.Error()
	}
	return fmt.Sprintf("server pid=%d exited before ready: %s; stderr tail: %s", e.pid, cause, e.tail)
}

func (e serverExitedError) Unwrap() error { return ErrServerExited }

// IsStartupTimeout reports whether err indicates the startup bound was exceeded.
func IsStartupTimeout(err error) bool { return errors.Is(err, ErrStartupTimeout) }

// IsServerExited reports whether err indicates an early process exit.
func IsServerExited(err error) bool { return errors.Is(err, ErrServerExited) }
