package httpapi

import "time"

// DefaultMaxBodyBytes bounds /score request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 4 << 20

// maxBodyBytes controls the maximum allowed request body size for /score.
var maxBodyBytes = DefaultMaxBodyBytes

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// scoreTimeout bounds a whole /score cycle. Zero leaves only the per-call
// upstream timeouts in effect.
var scoreTimeout time.Duration

// SetScoreTimeout sets the /score cycle timeout (0 disables).
func SetScoreTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	scoreTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
