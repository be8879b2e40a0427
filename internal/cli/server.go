package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pginfra "quiz-attempt-service/internal/infra/postgres"
	redisinfra "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logger"
	"quiz-attempt-service/internal/scoring"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Mode, cfg.Log.File)
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var store app.AttemptStore = memory.NewAttemptStore()
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		store = pginfra.NewAttemptStore(pool)
		loader = pginfra.NewQuizCatalog(pool)
	}
	catalog := memory.NewQuizCatalog(loader, 10*time.Minute)

	var cache app.TimerCache = memory.NewTimerCache()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = redisinfra.NewTimerCache(client, config.Duration(cfg.Redis.TTL, time.Hour))
	}

	supervisor := app.NewCountdownSupervisor(store, cache, log, app.CountdownConfig{
		TickInterval:       config.Duration(cfg.Timer.Tick, time.Second),
		CheckpointInterval: config.Duration(cfg.Timer.Checkpoint, 10*time.Second),
	})
	scorer := scoring.NewScorer(store, catalog, log)
	submitter := app.NewSubmissionCoordinator(store, scorer, memory.NewGradeSink(), supervisor, log)
	supervisor.SetExpiryHandler(app.AutoSubmitHandler(store, submitter, log))
	reconciler := app.NewReconciler(cache, log)
	attempts := app.NewAttemptService(store, catalog, reconciler, supervisor, log)

	handler := transport.NewHandler(attempts, submitter, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.Register(mux)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting attempt service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	supervisor.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides minimal quiz data for redis/postgres-less demo runs.
func sampleQuizzes() map[string]domain.Quiz {
	limit := 10
	attempts := 2
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Arithmetic warmup",
			TimeLimitMinutes: &limit,
			AttemptsAllowed:  &attempts,
			Questions: []domain.Question{
				{
					ID:             "q1",
					Type:           domain.QuestionMultipleChoice,
					Prompt:         "What is 2 + 2?",
					Options:        []string{"3", "4", "5"},
					CorrectAnswers: []string{"4"},
					Points:         1,
					OrderIndex:     0,
				},
				{
					ID:             "q2",
					Type:           domain.QuestionCheckbox,
					Prompt:         "Select the even numbers",
					Options:        []string{"1", "2", "3", "4"},
					CorrectAnswers: []string{"2", "4"},
					Points:         2,
					OrderIndex:     1,
				},
				{
					ID:         "q3",
					Type:       domain.QuestionEssay,
					Prompt:     "Explain why addition commutes.",
					Points:     5,
					OrderIndex: 2,
				},
			},
		},
	}
}
