package supervisor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Supervisor spawns and health-checks the backing inference server. It is
// constructed once per service instance and exclusively owns the process.
type Supervisor struct {
	cfg       Config
	clock     Clock
	prober    Prober
	launcher  Launcher
	publisher EventPublisher
	log       zerolog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	state  State
	handle *ServerHandle
	err    error
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

func WithClock(c Clock) Option { return func(s *Supervisor) { s.clock = c } }
func WithProber(p Prober) Option { return func(s *Supervisor) { s.prober = p } }
func WithLauncher(l Launcher) Option { return func(s *Supervisor) { s.launcher = l } }
func WithLogger(l zerolog.Logger) Option { return func(s *Supervisor) { s.log = l } }
func WithPublisher(p EventPublisher) Option {
	return func(s *Supervisor) {
		if p == nil {
			p = noopPublisher{}
		}
		s.publisher = p
	}
}

// New constructs a Supervisor in the NotStarted state.
func New(cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:       cfg.withDefaults(),
		clock:     realClock{},
		prober:    tcpProber{},
		publisher: noopPublisher{},
		log:       zerolog.Nop(),
		state:     StateNotStarted,
	}
	for _, o := range opts {
		o(s)
	}
	if s.launcher == nil {
		s.launcher = execLauncher{log: s.log.With().Str("component", "backing_server").Logger()}
	}
	observeState(StateNotStarted)
	return s
}

// Config returns the effective configuration after defaults.
func (s *Supervisor) Config() Config { return s.cfg }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Handle returns the server handle once Healthy, else nil.
func (s *Supervisor) Handle() *ServerHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Err returns the terminal startup error, if any.
func (s *Supervisor) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Ready reports whether the backing server reached Healthy.
func (s *Supervisor) Ready() bool { return s.State() == StateHealthy }

// Start launches the backing server and blocks until it accepts TCP
// connections, the wait bound elapses, or the process exits. Concurrent calls
// share one launch; calls after a terminal state return the cached outcome.
func (s *Supervisor) Start(ctx context.Context) (*ServerHandle, error) {
	v, err, _ := s.group.Do("start", func() (any, error) {
		return s.start(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ServerHandle), nil
}

func (s *Supervisor) start(ctx context.Context) (*ServerHandle, error) {
	s.mu.Lock()
	switch s.state {
	case StateHealthy:
		h := s.handle
		s.mu.Unlock()
		return h, nil
	case StateTimedOut, StateFailed:
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	if s.cfg.ModelPath == "" {
		s.mu.Unlock()
		return nil, errors.New("model path is not resolved")
	}
	s.state = StateStarting
	s.mu.Unlock()
	observeState(StateStarting)

	args := s.cfg.LaunchArgs()
	proc, err := s.launcher.Launch(s.cfg.Bin, args, s.cfg.Env)
	if err != nil {
		return nil, s.fail(StateFailed, err)
	}
	started := s.clock.Now()
	h := &ServerHandle{
		Host:      s.cfg.Host,
		Port:      s.cfg.Port,
		PID:       proc.Pid(),
		GPU:       s.cfg.GPU,
		StartedAt: started,
		proc:      proc,
	}
	s.log.Info().Int("pid", h.PID).Str("addr", h.Addr()).Bool("gpu", h.GPU).Strs("args", args).Msg("backing server spawned")
	s.publisher.Publish(Event{Name: EventSpawnStart, Fields: map[string]any{"pid": h.PID, "addr": h.Addr(), "gpu": h.GPU}})

	for s.clock.Now().Sub(started) < s.cfg.WaitTimeout {
		perr := s.prober.Probe(ctx, h.Addr(), s.cfg.ProbeTimeout)
		if perr == nil {
			return s.ready(h), nil
		}
		probeFailuresTotal.Inc()
		s.log.Debug().Err(perr).Str("addr", h.Addr()).Msg("waiting for backing server")
		s.publisher.Publish(Event{Name: EventProbeFailed, Fields: map[string]any{"addr": h.Addr(), "error": perr.Error()}})

		select {
		case <-proc.Done():
			exitErr := serverExitedError{pid: h.PID, err: proc.ExitErr(), tail: proc.StderrTail()}
			s.publisher.Publish(Event{Name: EventSpawnExit, Fields: map[string]any{"pid": h.PID, "error": exitErr.Error()}})
			return nil, s.fail(StateFailed, exitErr)
		default:
		}

		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			_ = proc.Kill()
			return nil, s.fail(StateFailed, err)
		}
	}

	_ = proc.Kill()
	terr := startupTimeoutError{addr: h.Addr(), after: s.cfg.WaitTimeout}
	s.publisher.Publish(Event{Name: EventSpawnTimeout, Fields: map[string]any{"pid": h.PID, "addr": h.Addr()}})
	return nil, s.fail(StateTimedOut, terr)
}

func (s *Supervisor) ready(h *ServerHandle) *ServerHandle {
	h.ReadyAt = s.clock.Now()
	s.mu.Lock()
	s.state = StateHealthy
	s.handle = h
	s.mu.Unlock()
	observeState(StateHealthy)
	startupSeconds.Set(h.StartupDuration().Seconds())
	s.log.Info().Int("pid", h.PID).Str("url", h.BaseURL()).Dur("startup", h.StartupDuration()).Msg("backing server healthy")
	s.publisher.Publish(Event{Name: EventSpawnReady, Fields: map[string]any{"pid": h.PID, "url": h.BaseURL()}})
	return h
}

func (s *Supervisor) fail(st State, err error) error {
	s.mu.Lock()
	s.state = st
	s.err = err
	s.mu.Unlock()
	observeState(st)
	s.log.Error().Err(err).Str("state", string(st)).Msg("backing server startup failed")
	return err
}

// Stop kills the backing server if one is running. The lifecycle state is
// left as is; a stopped supervisor cannot be restarted.
func (s *Supervisor) Stop() error {
	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()
	if h == nil || h.proc == nil {
		return nil
	}
	s.log.Info().Int("pid", h.PID).Msg("stopping backing server")
	return h.proc.Kill()
}
