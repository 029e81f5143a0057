package scoring

import (
	"net"
	"strconv"

	"scoringd/internal/supervisor"
	"scoringd/pkg/types"
)

// Supervisor is the read side of the process supervisor the service holds for
// its lifetime.
type Supervisor interface {
	Config() supervisor.Config
	State() supervisor.State
	Handle() *supervisor.ServerHandle
	Err() error
}

// Ready reports whether requests can be served. Without a supervisor the
// backing server is assumed to be managed elsewhere.
func (s *Service) Ready() bool {
	if s.sup == nil {
		return true
	}
	return s.sup.State() == supervisor.StateHealthy
}

// Status summarizes the backing server and service uptime.
func (s *Service) Status() types.StatusResponse {
	now := s.now()
	resp := types.StatusResponse{
		State:          string(supervisor.StateHealthy),
		UptimeSeconds:  int64(now.Sub(s.startedAt).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if s.sup == nil {
		return resp
	}
	cfg := s.sup.Config()
	resp.State = string(s.sup.State())
	resp.ServerAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	resp.ModelPath = cfg.ModelPath
	resp.GPU = cfg.GPU
	if h := s.sup.Handle(); h != nil {
		resp.PID = h.PID
		resp.StartupMs = h.StartupDuration().Milliseconds()
	}
	if err := s.sup.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}
