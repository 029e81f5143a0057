// Package natsapi serves the scoring cycle over NATS request/reply. Replies
// carry the same JSON body as POST /score; the HTTP-equivalent status is in
// the Status header.
package natsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"scoringd/internal/scoring"
)

const (
	HeaderStatus    = "Status"
	HeaderRequestID = "X-Request-Id"
	HeaderKind      = "Scoring-Outcome"
)

// Scorer is the scoring surface consumed by the transport.
type Scorer interface {
	Score(ctx context.Context, raw []byte) scoring.Outcome
	Ready() bool
}

// Client-side buffer ahead of the workers. A burst larger than this is
// reported as a slow consumer and the excess requests time out.
const (
	pendingMsgsLimit  = 64 * 1024
	pendingBytesLimit = 64 << 20
)

type Config struct {
	URL         string
	Subject     string
	Queue       string
	Concurrency int

	// ScoreTimeout bounds one scoring cycle. Zero means no bound.
	ScoreTimeout time.Duration
}

type Server struct {
	cfg Config
	svc Scorer
	log zerolog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func New(cfg Config, svc Scorer, log zerolog.Logger) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ScoreTimeout < 0 {
		cfg.ScoreTimeout = 0
	}
	return &Server{cfg: cfg, svc: svc, log: log.With().Str("component", "natsapi").Logger()}
}

// Run connects, joins the queue group on the subject, and serves requests
// with Concurrency workers pulling from one synchronous subscription. When
// ctx is done the subscription is drained: requests already delivered are
// answered and in-flight requests finish before Run returns.
func (s *Server) Run(ctx context.Context) error {
	conn, err := nats.Connect(s.cfg.URL, nats.Name("scoringd"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	sub, err := conn.QueueSubscribeSync(s.cfg.Subject, s.cfg.Queue)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", s.cfg.Subject, err)
	}
	if err := sub.SetPendingLimits(pendingMsgsLimit, pendingBytesLimit); err != nil {
		return fmt.Errorf("set pending limits: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("flush subscription: %w", err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	s.log.Info().Str("subject", s.cfg.Subject).Str("queue", s.cfg.Queue).
		Int("concurrency", s.cfg.Concurrency).Msg("NATS service starting")

	// Requests outlive ctx; fetching stops when the drained subscription
	// closes, or on fetchCancel if the drain could not start.
	reqCtx := context.WithoutCancel(ctx)
	fetchCtx, fetchCancel := context.WithCancel(reqCtx)
	defer fetchCancel()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.worker(fetchCtx, reqCtx, sub, worker)
		}(i)
	}

	<-ctx.Done()
	s.log.Info().Msg("NATS service shutting down")
	if err := sub.Drain(); err != nil {
		s.log.Warn().Err(err).Msg("drain subscription")
		fetchCancel()
	}
	wg.Wait()
	if err := conn.FlushTimeout(time.Second); err != nil {
		s.log.Warn().Err(err).Msg("flush replies")
	}
	return nil
}

func (s *Server) worker(fetchCtx, reqCtx context.Context, sub *nats.Subscription, worker int) {
	for {
		msg, err := sub.NextMsgWithContext(fetchCtx)
		if err != nil {
			if errors.Is(err, nats.ErrSlowConsumer) {
				s.log.Warn().Int("worker", worker).Msg("slow consumer, requests dropped")
				continue
			}
			s.log.Debug().Err(err).Int("worker", worker).Msg("NATS worker stopped")
			return
		}
		s.serve(reqCtx, msg, worker)
	}
}

func (s *Server) serve(ctx context.Context, msg *nats.Msg, worker int) {
	if msg.Reply == "" {
		s.log.Warn().Str("subject", msg.Subject).Msg("dropping request without reply subject")
		return
	}
	if s.cfg.ScoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ScoreTimeout)
		defer cancel()
	}
	reply := s.Handle(ctx, msg.Data, msg.Header)
	if err := msg.RespondMsg(reply); err != nil {
		s.log.Error().Err(err).Int("worker", worker).Str("request_id", reply.Header.Get(HeaderRequestID)).Msg("failed to publish response")
	}
}

// Handle runs one scoring cycle for a request payload and returns the reply
// message (data and headers; the subject is filled in by the responder).
func (s *Server) Handle(ctx context.Context, data []byte, hdr nats.Header) *nats.Msg {
	reply := &nats.Msg{Header: nats.Header{}}
	if !s.svc.Ready() {
		return errorReply(reply, 503, "backing inference server is not ready")
	}
	if rid := hdr.Get(HeaderRequestID); rid != "" {
		ctx = scoring.WithRequestID(ctx, rid)
	}
	out := s.svc.Score(ctx, data)
	body, err := json.Marshal(out.Body)
	if err != nil {
		return errorReply(reply, 500, "failed to encode response")
	}
	reply.Data = body
	reply.Header.Set(HeaderStatus, strconv.Itoa(out.StatusCode()))
	reply.Header.Set(HeaderKind, out.Kind.String())
	reply.Header.Set(HeaderRequestID, out.RequestID)
	return reply
}

func errorReply(m *nats.Msg, status int, msg string) *nats.Msg {
	m.Data, _ = json.Marshal(map[string]any{"error": msg, "code": status})
	m.Header.Set(HeaderStatus, strconv.Itoa(status))
	return m
}
