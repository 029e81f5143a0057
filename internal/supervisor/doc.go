// Package supervisor owns the lifecycle of the backing inference server
// process. It is structured into small files by concern:
//
//   - supervisor.go: Supervisor, Start (start-once guard) and the readiness loop.
//   - config.go: Config, package defaults and launch flag selection.
//   - state.go: lifecycle states and ServerHandle.
//   - errors.go: error types and helpers (IsStartupTimeout, IsServerExited).
//   - clock.go: Clock and Prober seams plus their real implementations.
//   - launcher.go: Launcher/Process seam and the os/exec implementation.
//   - events.go: lifecycle events and publishers.
//   - metrics.go: Prometheus collectors for state and startup duration.
//
// The state machine is NotStarted -> Starting -> Healthy, or
// Starting -> TimedOut / Failed. Every terminal state is sticky: later Start
// calls return the cached handle or error without relaunching. Once Healthy
// the supervisor does not re-check liveness.
package supervisor
