package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"voicejournal/internal/analytics"
	"voicejournal/internal/auth"
	"voicejournal/internal/blob"
	"voicejournal/internal/checkin"
	"voicejournal/internal/config"
	"voicejournal/internal/crisis"
	"voicejournal/internal/db"
	"voicejournal/internal/entry"
	httpx "voicejournal/internal/http"
	"voicejournal/internal/jobs"
	"voicejournal/internal/llm"
	"voicejournal/internal/logging"
	"voicejournal/internal/response"
	"voicejournal/internal/scheduler"
	"voicejournal/internal/speech"
	"voicejournal/internal/transcribe"
	"voicejournal/internal/video"
)

const (
	sessionIdleTTL   = 2 * time.Hour
	finishedJobsKeep = 7 * 24 * time.Hour
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the job worker and maintenance tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not migrate the schema on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if !skipMigrate {
		if err := db.AutoMigrateAndIndexes(gdb, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, closeCache, err := newDashboardCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	entryStore := &entry.GormStore{DB: gdb}
	dashboards := analytics.NewService(entryStore, cache, cfg.CacheTTL, log)
	entries := entry.NewService(entryStore, dashboards, log)

	pipeline, err := newPipeline(ctx, cfg, gdb, entries, log)
	if err != nil {
		return err
	}

	jobsRepo := &jobs.Repo{DB: gdb}
	worker := jobs.NewWorker("worker-1", jobsRepo, log)

	var coordinator *video.Coordinator
	if cfg.VideoAPIURL != "" {
		mode, ok := video.ModeByName(cfg.VideoPollMode)
		if !ok {
			return fmt.Errorf("unknown VIDEO_POLL_MODE %q", cfg.VideoPollMode)
		}
		coordinator = video.NewCoordinator(
			video.NewHTTPProvider(cfg.VideoAPIURL, cfg.VideoAPIKey),
			entries,
			log,
			video.WithQueue(jobsRepo),
			video.WithDefaultMode(mode),
			video.WithPersona(cfg.VideoPersonaID),
		)
		coordinator.Start(ctx)
		worker.Handle(video.JobTypePoll, coordinator.HandleJob)
		pipeline.Video = coordinator
	} else {
		log.Warn().Msg("no VIDEO_API_URL configured, video generation disabled")
	}

	go worker.Run(ctx)

	sessions := checkin.NewRegistry()
	sched := scheduler.New(log)
	if err := scheduleMaintenance(sched, cache, sessions, jobsRepo); err != nil {
		return err
	}
	sched.Start()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpx.NewRouter(httpx.Deps{
			Config:    cfg,
			Logger:    log,
			JWT:       auth.NewJWT(cfg.JWTSecret),
			Users:     &auth.UserStore{DB: gdb},
			Sessions:  sessions,
			Pipeline:  pipeline,
			Entries:   entries,
			Analytics: dashboards,
			Resources: crisis.DefaultResources,
			Ping:      db.Ping(gdb),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if coordinator != nil {
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("video polls did not stop in time")
		}
	}
	sched.Stop()
	cancel()
	pipeline.Flags.Wait()
	return nil
}

func newDashboardCache(ctx context.Context, cfg config.Config, log zerolog.Logger) (analytics.Cache, func(), error) {
	switch cfg.CacheBackend {
	case "", "memory":
		return analytics.NewMemoryCache(), func() {}, nil
	case "redis":
		rc, err := analytics.NewRedisCache(ctx, cfg.RedisAddr, "", 0)
		if err != nil {
			return nil, nil, fmt.Errorf("dashboard cache: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("dashboard cache on redis")
		return rc, func() { _ = rc.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
}

func newPipeline(ctx context.Context, cfg config.Config, gdb *gorm.DB, entries *entry.Service, log zerolog.Logger) (*checkin.Pipeline, error) {
	provider, err := llm.New(ctx, llm.Config{
		Provider:      cfg.LLMProvider,
		APIKey:        cfg.OpenAIAPIKey,
		BaseURL:       cfg.OpenAIBaseURL,
		Model:         cfg.LLMModel,
		BedrockRegion: cfg.BedrockRegion,
		BedrockModel:  cfg.BedrockModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	if provider == nil {
		log.Warn().Msg("no LLM provider configured, responses come from templates")
	}

	rcfg := response.DefaultConfig()
	rcfg.AIAttemptPercent = float64(cfg.AIAttemptPercent)
	rcfg.ConfidenceThreshold = cfg.ConfidenceThreshold
	responder, err := response.New(rcfg, provider, response.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("response orchestrator: %w", err)
	}

	blobs, err := blob.NewDirStore(cfg.BlobDir)
	if err != nil {
		return nil, err
	}

	var synth speech.Provider
	if cfg.OpenAIAPIKey != "" {
		synth = speech.NewOpenAIProvider(speech.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.TTSModel,
		}, log)
	}

	policy := crisis.DefaultPolicy()
	policy.PerMatch = cfg.CrisisPerMatch
	gate := crisis.NewGate(policy)

	return &checkin.Pipeline{
		Transcriber: transcribe.New(transcribe.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.STTModel,
		}, log),
		Gate:      gate,
		Flags:     crisis.NewFlagRecorder(&crisis.GormFlagStore{DB: gdb}, gate, log),
		Responder: responder,
		Speech:    speech.NewAdapter(synth, blobs, log),
		Blobs:     blobs,
		Entries:   entries,
		Voice:     cfg.TTSVoice,
		Logger:    logging.Component(log, "checkin"),
	}, nil
}

func scheduleMaintenance(s *scheduler.Scheduler, cache analytics.Cache, sessions *checkin.Registry, repo *jobs.Repo) error {
	if mc, ok := cache.(*analytics.MemoryCache); ok {
		if err := s.Add("prune-dashboard-cache", "@every 1m", func(context.Context) (int64, error) {
			return int64(mc.Prune()), nil
		}); err != nil {
			return err
		}
	}
	if err := s.Add("prune-sessions", "@every 5m", func(context.Context) (int64, error) {
		return int64(sessions.Prune(sessionIdleTTL)), nil
	}); err != nil {
		return err
	}
	return s.Add("purge-finished-jobs", "0 3 * * *", func(ctx context.Context) (int64, error) {
		return repo.PurgeFinished(ctx, time.Now().Add(-finishedJobsKeep))
	})
}
