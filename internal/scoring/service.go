// Package scoring runs the per-request cycle: normalize the inbound payload,
// call the protocol adapter, and present the results.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"scoringd/internal/llamaclient"
	"scoringd/internal/payload"
	"scoringd/internal/store"
	"scoringd/pkg/types"
)

// Generator is the protocol adapter seen by the service.
type Generator interface {
	Generate(ctx context.Context, query []any, params map[string]any, task types.TaskType) ([]types.InferenceResult, error)
}

// Recorder persists per-request statistics. Optional.
type Recorder interface {
	Record(ctx context.Context, e store.Entry) error
}

// Deps wires the service. Generator is required.
type Deps struct {
	Generator Generator
	Recorder  Recorder
	Logger    zerolog.Logger
	// TaskOverride, when set, replaces the inbound task_type before
	// normalization. Deployments pin their task this way.
	TaskOverride string
	Supervisor   Supervisor
	Now          func() time.Time
}

// Service is the per-instance scoring context. It is built once at startup
// and shared by all requests; Ready gates scoring on the supervisor.
type Service struct {
	gen          Generator
	rec          Recorder
	log          zerolog.Logger
	taskOverride string
	sup          Supervisor
	now          func() time.Time
	startedAt    time.Time
}

// New constructs a Service.
func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gen:          d.Generator,
		rec:          d.Recorder,
		log:          d.Logger,
		taskOverride: d.TaskOverride,
		sup:          d.Supervisor,
		now:          now,
		startedAt:    now(),
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id used for logging and stats rows.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id attached with WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(ctx context.Context) string {
	if id := RequestIDFrom(ctx); id != "" {
		return id
	}
	return ulid.Make().String()
}

// Score runs one full cycle for a raw request body. It never panics and never
// returns an error: every failure is folded into the Outcome kind.
func (s *Service) Score(ctx context.Context, raw []byte) (out Outcome) {
	out.RequestID = requestID(ctx)
	log := s.log.With().Str("request_id", out.RequestID).Logger()
	begin := s.now()
	var p types.RequestPayload

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Kind:      KindInternalFailure,
				Body:      emptyBody(),
				Err:       fmt.Errorf("panic: %v", r),
				RequestID: out.RequestID,
				TaskType:  out.TaskType,
			}
		}
		outcomesTotal.WithLabelValues(out.Kind.String(), string(out.TaskType)).Inc()
		ev := log.Info()
		if out.Kind != KindSuccess {
			ev = log.Warn().Err(out.Err)
		}
		ev.Str("kind", out.Kind.String()).Str("task_type", string(out.TaskType)).
			Int("results", len(out.Results)).Dur("dur", s.now().Sub(begin)).Msg("score")
		s.record(ctx, log, begin, p, out)
	}()

	raw, err := s.applyTaskOverride(raw)
	if err != nil {
		return s.validationFailure(out, err)
	}
	p, err = payload.Parse(raw)
	if err != nil {
		return s.validationFailure(out, err)
	}
	out.TaskType = p.TaskType
	log.Debug().Interface("params", p.Params).Bool("legacy", p.IsLegacyFormat).Msg("processing request")

	start := s.now()
	results, err := s.gen.Generate(ctx, p.Query, p.Params, p.TaskType)
	elapsed := s.now().Sub(start)
	cycleDuration.WithLabelValues(string(p.TaskType)).Observe(elapsed.Seconds())
	if err != nil {
		return classifyGenerateError(out, err)
	}
	stamp(results, elapsed)
	for i := range results {
		logResult(log, results[i])
	}
	return present(out, p.TaskType, results)
}

func (s *Service) validationFailure(out Outcome, err error) Outcome {
	out.Kind = KindValidationFailure
	out.Err = err
	var fe *payload.RequestFormatError
	if errors.As(err, &fe) {
		out.Body = fe.Response()
	} else {
		out.Body = types.FormatErrorResponse{Error: "Error in processing request", Exception: err.Error()}
	}
	return out
}

// applyTaskOverride rewrites the task_type field of the raw body. Bodies that
// are not JSON objects are passed through for the normalizer to reject.
func (s *Service) applyTaskOverride(raw []byte) ([]byte, error) {
	if s.taskOverride == "" {
		return raw, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw, nil
	}
	t, _ := json.Marshal(s.taskOverride)
	m["task_type"] = t
	return json.Marshal(m)
}

func classifyGenerateError(out Outcome, err error) Outcome {
	out.Err = err
	switch {
	case llamaclient.IsUnsupportedTask(err):
		out.Kind = KindValidationFailure
		out.Body = types.FormatErrorResponse{Error: "Error in processing request", Exception: err.Error()}
	case llamaclient.IsTransport(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		out.Kind = KindUpstreamFailure
		out.Body = types.ErrorResponse{Error: err.Error()}
	default:
		out.Kind = KindInternalFailure
		out.Body = emptyBody()
	}
	return out
}

// stamp sets the same end-to-end elapsed time and the positional index on
// every result.
func stamp(results []types.InferenceResult, elapsed time.Duration) {
	ms := float64(elapsed) / float64(time.Millisecond)
	for i := range results {
		t, idx := ms, i
		results[i].InferenceTimeMs = &t
		results[i].PromptIndex = &idx
	}
}

func logResult(log zerolog.Logger, r types.InferenceResult) {
	idx := 0
	if r.PromptIndex != nil {
		idx = *r.PromptIndex
	}
	if r.Failed() {
		log.Warn().Int("prompt", idx).Str("error", r.ErrorText()).Msg("inference result")
		return
	}
	log.Debug().Int("prompt", idx).Int("tokens_generated", len(r.GeneratedTokens)).Msg("inference result")
}

// present shapes results into the outward body. Conversational tasks return
// {"output": text}; other tasks return the list of response texts, with null
// for results that failed. A cycle whose results all failed is an upstream
// failure.
func present(out Outcome, task types.TaskType, results []types.InferenceResult) Outcome {
	out.Results = results
	failed := 0
	var firstErr string
	for i := range results {
		if results[i].Failed() {
			if failed == 0 {
				firstErr = results[i].ErrorText()
			}
			failed++
		}
	}

	if task == types.TaskConversational {
		if len(results) == 0 {
			out.Kind = KindInternalFailure
			out.Err = errors.New("no inference results")
			out.Body = emptyBody()
			return out
		}
		if results[0].Failed() {
			return upstreamFailure(out, firstErr)
		}
		out.Kind = KindSuccess
		out.Body = types.ConversationalResponse{Output: results[0].Text()}
		return out
	}

	if len(results) > 0 && failed == len(results) {
		return upstreamFailure(out, firstErr)
	}
	texts := make([]*string, len(results))
	for i := range results {
		texts[i] = results[i].Response
	}
	out.Kind = KindSuccess
	out.Body = texts
	return out
}

func upstreamFailure(out Outcome, msg string) Outcome {
	out.Kind = KindUpstreamFailure
	out.Err = errors.New(msg)
	out.Body = types.ErrorResponse{Error: msg}
	return out
}

// record stores statistics and then clears generated tokens so they never
// leave the process.
func (s *Service) record(ctx context.Context, log zerolog.Logger, at time.Time, p types.RequestPayload, out Outcome) {
	if s.rec != nil {
		e := store.Entry{
			RequestID: out.RequestID,
			At:        at,
			TaskType:  out.TaskType,
			Legacy:    p.IsLegacyFormat,
			Params:    p.Params,
			Outcome:   out.Kind.String(),
			Duration:  s.now().Sub(at),
			Results:   out.Results,
		}
		if out.Err != nil {
			e.Error = out.Err.Error()
		}
		if err := s.rec.Record(context.WithoutCancel(ctx), e); err != nil {
			log.Warn().Err(err).Msg("record stats")
		}
	}
	for i := range out.Results {
		out.Results[i].ClearGeneratedTokens()
	}
}
