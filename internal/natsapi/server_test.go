package natsapi

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"scoringd/internal/scoring"
	"scoringd/pkg/types"
)

type fakeScorer struct {
	ready bool
	out   scoring.Outcome
	calls int
}

func (f *fakeScorer) Ready() bool { return f.ready }
func (f *fakeScorer) Score(ctx context.Context, raw []byte) scoring.Outcome {
	f.calls++
	out := f.out
	// echo the id the transport attached, mirroring scoring.Service
	out.RequestID = "generated"
	if rid := scoring.RequestIDFrom(ctx); rid != "" {
		out.RequestID = rid
	}
	return out
}

func TestHandle_Success(t *testing.T) {
	f := &fakeScorer{ready: true, out: scoring.Outcome{Kind: scoring.KindSuccess, Body: types.ConversationalResponse{Output: "hi"}}}
	s := New(Config{Subject: "scoringd.score"}, f, zerolog.Nop())

	reply := s.Handle(context.Background(), []byte(`{}`), nats.Header{})
	if string(reply.Data) != `{"output":"hi"}` {
		t.Fatalf("data = %s", reply.Data)
	}
	if reply.Header.Get(HeaderStatus) != "200" || reply.Header.Get(HeaderKind) != "success" {
		t.Fatalf("headers = %v", reply.Header)
	}
	if reply.Header.Get(HeaderRequestID) != "generated" {
		t.Fatalf("request id = %q", reply.Header.Get(HeaderRequestID))
	}
}

func TestHandle_PropagatesRequestID(t *testing.T) {
	f := &fakeScorer{ready: true, out: scoring.Outcome{Kind: scoring.KindSuccess, Body: []string{}}}
	hdr := nats.Header{}
	hdr.Set(HeaderRequestID, "req-42")
	reply := New(Config{}, f, zerolog.Nop()).Handle(context.Background(), []byte(`{}`), hdr)
	if reply.Header.Get(HeaderRequestID) != "req-42" {
		t.Fatalf("request id = %q", reply.Header.Get(HeaderRequestID))
	}
}

func TestHandle_ValidationFailure(t *testing.T) {
	f := &fakeScorer{ready: true, out: scoring.Outcome{
		Kind: scoring.KindValidationFailure,
		Body: types.FormatErrorResponse{Error: "Expected input format: \nx", Exception: "bad"},
	}}
	reply := New(Config{}, f, zerolog.Nop()).Handle(context.Background(), []byte(`nope`), nil)
	if reply.Header.Get(HeaderStatus) != "400" {
		t.Fatalf("status = %q", reply.Header.Get(HeaderStatus))
	}
	if string(reply.Data) != `{"error":"Expected input format: \nx","exception":"bad"}` {
		t.Fatalf("data = %s", reply.Data)
	}
}

func TestHandle_NotReady(t *testing.T) {
	f := &fakeScorer{ready: false}
	reply := New(Config{}, f, zerolog.Nop()).Handle(context.Background(), []byte(`{}`), nil)
	if reply.Header.Get(HeaderStatus) != "503" {
		t.Fatalf("status = %q", reply.Header.Get(HeaderStatus))
	}
	if f.calls != 0 {
		t.Fatalf("scorer called before ready")
	}
}

func TestNew_DefaultsConcurrency(t *testing.T) {
	s := New(Config{Concurrency: -3}, &fakeScorer{}, zerolog.Nop())
	if s.cfg.Concurrency != 1 {
		t.Fatalf("concurrency = %d", s.cfg.Concurrency)
	}
}
