package supervisor

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// Launcher spawns the backing server. It is the only place that touches
// os/exec.
type Launcher interface {
	Launch(bin string, args, env []string) (Process, error)
}

// Process is the narrow view of a spawned server used by the supervisor.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitErr returns the Wait error after Done is closed.
	ExitErr() error
	// StderrTail returns the last bytes written to stderr.
	StderrTail() string
	Kill() error
}

const stderrTailBytes = 4096

// execLauncher starts processes via os/exec and streams their output to the
// logger line by line.
type execLauncher struct {
	log zerolog.Logger
}

func (l execLauncher) Launch(bin string, args, env []string) (Process, error) {
	cmd := exec.Command(bin, args...)
	if len(env) > 0 {
		cmd.Env = env
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &lineLogger{log: l.log, stream: "stdout"}
	cmd.Stderr = io.MultiWriter(&p.tail, &lineLogger{log: l.log, stream: "stderr"})
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	tail tailBuffer
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }
func (p *execProcess) StderrTail() string    { return p.tail.String() }

func (p *execProcess) ExitErr() error {
	<-p.done
	return p.err
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}

// tailBuffer keeps the last stderrTailBytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - stderrTailBytes; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.mu.Unlock()
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// lineLogger logs complete output lines from the child process.
type lineLogger struct {
	log    zerolog.Logger
	stream string
	buf    []byte
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := string(bytes.TrimRight(lw.buf[:idx], "\r")); line != "" {
			lw.log.Debug().Str("stream", lw.stream).Msg(line)
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
