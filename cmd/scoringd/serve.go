package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scoringd/internal/config"
	"scoringd/internal/httpapi"
	"scoringd/internal/llamaclient"
	"scoringd/internal/logging"
	"scoringd/internal/natsapi"
	"scoringd/internal/scoring"
	"scoringd/internal/store"
	"scoringd/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// serve wires the service. The model path is resolved before the supervisor
// is constructed; the HTTP listener comes up first so /healthz and /readyz
// answer during the startup wait.
func serve(ctx context.Context, cfg config.Config, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, logCloser, err := logging.Setup(cfg.Log, stderr)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()

	modelPath, err := resolveModel(cfg)
	if err != nil {
		return err
	}
	log.Info().Str("model", modelPath).Msg("model resolved")

	sup := supervisor.New(cfg.Supervisor(modelPath), supervisor.WithLogger(log.With().Str("component", "supervisor").Logger()))
	defer func() {
		if err := sup.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop backing server")
		}
	}()

	client := llamaclient.New(cfg.AdapterConfig("http://"+cfg.ServerAddr()),
		llamaclient.WithLogger(log.With().Str("component", "llamaclient").Logger()))

	deps := scoring.Deps{
		Generator:    client,
		Supervisor:   sup,
		Logger:       log.With().Str("component", "scoring").Logger(),
		TaskOverride: cfg.TaskOverride,
	}
	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open stats store: %w", err)
		}
		defer db.Close()
		deps.Recorder = db
		log.Info().Str("path", cfg.Store.Path).Msg("stats store opened")
	}
	svc := scoring.New(deps)

	configureHTTP(ctx, cfg, log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("scoringd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	g.Go(func() error {
		h, err := sup.Start(gctx)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			// No request can be served after a failed startup.
			return fmt.Errorf("backing server: %w", err)
		}
		log.Info().Str("url", h.BaseURL()).Msg("ready to score")
		if cfg.NATS.URL == "" {
			return nil
		}
		ns := natsapi.New(natsapi.Config{
			URL:          cfg.NATS.URL,
			Subject:      cfg.NATS.Subject,
			Queue:        cfg.NATS.Queue,
			Concurrency:  cfg.NATS.Concurrency,
			ScoreTimeout: cfg.ScoreTimeout.D(),
		}, svc, log)
		return ns.Run(gctx)
	})
	return g.Wait()
}

func configureHTTP(base context.Context, cfg config.Config, log zerolog.Logger) {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(base)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetScoreTimeout(cfg.ScoreTimeout.D())
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
}
