package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scoringd/internal/scoring"
	"scoringd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Score(ctx context.Context, raw []byte) scoring.Outcome
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Post("/score", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		if !svc.Ready() {
			notReadyTotal.Inc()
			writeJSONError(w, http.StatusServiceUnavailable, "backing inference server is not ready")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		rid := middleware.GetReqID(r.Context())
		lvl := requestLogLevel(r)
		log := zlog.With().Str("path", r.URL.Path).Str("request_id", rid).Logger()
		if lvl >= LevelDebug {
			log.Debug().RawJSON("body", jsonOrString(raw)).Msg("score request")
		}
		if lvl >= LevelInfo {
			log.Info().Int("bytes", len(raw)).Msg("score start")
		}

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if scoreTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, scoreTimeout)
			defer tcancel()
		}
		start := time.Now()
		out := svc.Score(scoring.WithRequestID(ctx, rid), raw)
		if r.Context().Err() != nil {
			// Client went away; nothing to write.
			return
		}
		writeJSON(w, out.StatusCode(), out.Body)

		switch {
		case out.Kind != scoring.KindSuccess && lvl >= LevelError:
			log.Error().Err(out.Err).Int("status", out.StatusCode()).Str("kind", out.Kind.String()).
				Str("task_type", string(out.TaskType)).Dur("dur", time.Since(start)).Msg("score end")
		case lvl >= LevelInfo:
			log.Info().Int("status", out.StatusCode()).Str("kind", out.Kind.String()).
				Str("task_type", string(out.TaskType)).Dur("dur", time.Since(start)).Msg("score end")
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// jsonOrString returns raw when it is valid JSON, otherwise raw quoted as a
// JSON string, so it can be embedded in a structured log line.
func jsonOrString(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	b, _ := json.Marshal(string(raw))
	return b
}
