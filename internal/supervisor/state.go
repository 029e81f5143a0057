package supervisor

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// State represents the lifecycle state of the backing server.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateHealthy    State = "healthy"
	StateTimedOut   State = "timed_out"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateHealthy || s == StateTimedOut || s == StateFailed
}

// ServerHandle references a running backing server. Only the supervisor holds
// the process; callers use Addr/BaseURL.
type ServerHandle struct {
	Host      string
	Port      int
	PID       int
	GPU       bool
	StartedAt time.Time
	ReadyAt   time.Time

	proc Process
}

// Addr returns host:port.
func (h *ServerHandle) Addr() string { return net.JoinHostPort(h.Host, strconv.Itoa(h.Port)) }

// BaseURL returns the http base URL of the backing server.
func (h *ServerHandle) BaseURL() string { return fmt.Sprintf("http://%s", h.Addr()) }

// StartupDuration is the time between spawn and the first healthy probe.
func (h *ServerHandle) StartupDuration() time.Duration { return h.ReadyAt.Sub(h.StartedAt) }
