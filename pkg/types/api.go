package types

// ConversationalResponse is returned for conversational tasks.
type ConversationalResponse struct {
	// Text of the first and only result.
	Output string `json:"output"`
}

// FormatErrorResponse is returned when the inbound request shape is invalid.
type FormatErrorResponse struct {
	// Expected input format, with a literal example.
	Error string `json:"error"`
	// Original parse failure text.
	Exception string `json:"exception"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Supervisor lifecycle state (not_started, starting, healthy, timed_out, failed).
	State      string `json:"state"`
	ServerAddr string `json:"server_addr"`
	// Process ID of the backing server once spawned.
	PID       int    `json:"pid,omitempty"`
	ModelPath string `json:"model_path"`
	GPU       bool   `json:"gpu"`
	// Time between spawn and the first healthy probe.
	StartupMs int64 `json:"startup_ms,omitempty"`
	// Set when the supervisor reached a failed terminal state.
	Error          string `json:"error,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ServerTimeUnix int64  `json:"server_time_unix"`
}
