package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	c.mu.Unlock()
	return nil
}

// fakeProber fails until okAfter probes have been made (0 = never succeeds).
type fakeProber struct {
	okAfter int
	calls   atomic.Int32
	gate    chan struct{}
	onProbe func(n int)
}

func (p *fakeProber) Probe(ctx context.Context, addr string, timeout time.Duration) error {
	if p.gate != nil {
		<-p.gate
	}
	n := int(p.calls.Add(1))
	if p.onProbe != nil {
		p.onProbe(n)
	}
	if p.okAfter > 0 && n >= p.okAfter {
		return nil
	}
	return errors.New("connection refused")
}

type fakeProcess struct {
	pid    int
	done   chan struct{}
	once   sync.Once
	err    error
	tail   string
	killed atomic.Bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitErr() error        { return p.err }
func (p *fakeProcess) StderrTail() string    { return p.tail }
func (p *fakeProcess) exit(err error)        { p.err = err; p.once.Do(func() { close(p.done) }) }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(errors.New("signal: killed"))
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	proc     *fakeProcess
	err      error
	launches int
	bin      string
	args     []string
}

func (l *fakeLauncher) Launch(bin string, args, env []string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.bin = bin
	l.args = append([]string(nil), args...)
	if l.err != nil {
		return nil, l.err
	}
	return l.proc, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}
