package scoring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"scoringd/internal/supervisor"
)

type fakeSupervisor struct {
	cfg    supervisor.Config
	state  supervisor.State
	handle *supervisor.ServerHandle
	err    error
}

func (f fakeSupervisor) Config() supervisor.Config        { return f.cfg }
func (f fakeSupervisor) State() supervisor.State          { return f.state }
func (f fakeSupervisor) Handle() *supervisor.ServerHandle { return f.handle }
func (f fakeSupervisor) Err() error                       { return f.err }

func TestStatus_Healthy(t *testing.T) {
	clk := &stepClock{t: time.Unix(100, 0)}
	start := time.Unix(10, 0)
	sup := fakeSupervisor{
		cfg:    supervisor.Config{ModelPath: "/m/model.gguf", Host: "localhost", Port: 8000, GPU: true},
		state:  supervisor.StateHealthy,
		handle: &supervisor.ServerHandle{Host: "localhost", Port: 8000, PID: 42, StartedAt: start, ReadyAt: start.Add(90 * time.Second)},
	}
	svc := New(Deps{Generator: &fakeGenerator{}, Supervisor: sup, Logger: zerolog.Nop(), Now: clk.now})
	clk.t = clk.t.Add(time.Minute)

	st := svc.Status()
	if st.State != "healthy" || st.ServerAddr != "localhost:8000" || st.PID != 42 || !st.GPU {
		t.Fatalf("status = %+v", st)
	}
	if st.StartupMs != 90000 {
		t.Fatalf("startup_ms = %d", st.StartupMs)
	}
	if st.UptimeSeconds != 60 || st.ServerTimeUnix != 160 {
		t.Fatalf("uptime = %d, time = %d", st.UptimeSeconds, st.ServerTimeUnix)
	}
	if !svc.Ready() {
		t.Fatalf("expected ready")
	}
}

func TestStatus_TimedOut(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0)}
	sup := fakeSupervisor{state: supervisor.StateTimedOut, err: supervisor.ErrStartupTimeout}
	svc := New(Deps{Generator: &fakeGenerator{}, Supervisor: sup, Logger: zerolog.Nop(), Now: clk.now})
	st := svc.Status()
	if st.State != "timed_out" || st.Error == "" || st.PID != 0 {
		t.Fatalf("status = %+v", st)
	}
	if svc.Ready() {
		t.Fatalf("expected not ready")
	}
}
