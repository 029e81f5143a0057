package natsapi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"scoringd/internal/scoring"
	"scoringd/pkg/types"
)

func runNATSServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

// slowScorer holds every cycle until release is closed (or for delay when
// release is nil) and records whether the cycle context was canceled.
type slowScorer struct {
	delay    time.Duration
	release  chan struct{}
	started  chan struct{}
	calls    atomic.Int32
	canceled atomic.Int32
}

func (f *slowScorer) Ready() bool { return true }
func (f *slowScorer) Score(ctx context.Context, raw []byte) scoring.Outcome {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	} else {
		time.Sleep(f.delay)
	}
	if ctx.Err() != nil {
		f.canceled.Add(1)
		return scoring.Outcome{Kind: scoring.KindUpstreamFailure, Body: types.ErrorResponse{Error: ctx.Err().Error()}}
	}
	return scoring.Outcome{Kind: scoring.KindSuccess, Body: types.ConversationalResponse{Output: "ok"}}
}

func startRun(t *testing.T, s *Server) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.mu.Lock()
		sub := s.sub
		s.mu.Unlock()
		if sub != nil {
			return cancel, done
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("subscription never created")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// pending reports messages buffered for the workers.
func pendingMsgs(s *Server) int {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return 0
	}
	n, _, err := sub.Pending()
	if err != nil {
		return 0
	}
	return n
}

func request(t *testing.T, nc *nats.Conn, subject string) (*nats.Msg, error) {
	t.Helper()
	return nc.RequestMsg(&nats.Msg{Subject: subject, Data: []byte(`{}`), Header: nats.Header{}}, 10*time.Second)
}

func TestRun_BurstLargerThanWorkersIsAnswered(t *testing.T) {
	url := runNATSServer(t)
	f := &slowScorer{delay: 100 * time.Millisecond}
	s := New(Config{URL: url, Subject: "scoringd.burst", Queue: "scoringd", Concurrency: 2}, f, zerolog.Nop())
	cancel, done := startRun(t, s)
	defer func() {
		cancel()
		<-done
	}()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := request(t, nc, "scoringd.burst")
			if err != nil {
				errs <- err.Error()
				return
			}
			if st := msg.Header.Get(HeaderStatus); st != "200" {
				errs <- "status " + st
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("request failed: %s", e)
	}
	if got := f.calls.Load(); got != n {
		t.Fatalf("scored %d requests, want %d", got, n)
	}
}

func TestRun_ShutdownAnswersQueuedAndInFlight(t *testing.T) {
	url := runNATSServer(t)
	f := &slowScorer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(Config{URL: url, Subject: "scoringd.drain", Queue: "scoringd", Concurrency: 1}, f, zerolog.Nop())
	cancel, done := startRun(t, s)

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	const n = 3
	statuses := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			msg, err := request(t, nc, "scoringd.drain")
			if err != nil {
				statuses <- err.Error()
				return
			}
			statuses <- msg.Header.Get(HeaderStatus)
		}()
	}

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never reached the scorer")
	}
	deadline := time.Now().Add(5 * time.Second)
	for pendingMsgs(s) < n-1 {
		if time.Now().After(deadline) {
			t.Fatalf("pending = %d, want %d", pendingMsgs(s), n-1)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(f.release)

	for i := 0; i < n; i++ {
		select {
		case st := <-statuses:
			if st != "200" {
				t.Errorf("reply %d = %s, want 200", i, st)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("reply %d never arrived", i)
		}
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after drain")
	}
	if c := f.canceled.Load(); c != 0 {
		t.Fatalf("%d cycles saw a canceled context", c)
	}
}

func TestRun_ScoreTimeoutBoundsCycle(t *testing.T) {
	url := runNATSServer(t)
	f := &slowScorer{delay: 200 * time.Millisecond}
	s := New(Config{URL: url, Subject: "scoringd.timeout", Queue: "scoringd", Concurrency: 1, ScoreTimeout: 20 * time.Millisecond}, f, zerolog.Nop())
	cancel, done := startRun(t, s)
	defer func() {
		cancel()
		<-done
	}()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	msg, err := request(t, nc, "scoringd.timeout")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if st := msg.Header.Get(HeaderStatus); st != "502" {
		t.Fatalf("status = %s, want 502", st)
	}
}
