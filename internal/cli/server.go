package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/config"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/infra/memory"
	pgstore "school-quiz-service/internal/infra/postgres"
	redisinfra "school-quiz-service/internal/infra/redis"
	transport "school-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var store app.AttemptStore = memory.NewAttemptStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		loader = pgstore.NewQuizLoader(pool)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		store = pgstore.NewAttemptStore(bun.NewDB(sqldb, pgdialect.New()))
	}

	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, cacheTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, cacheTTL)
	}

	opts := []app.Option{}
	if redisClient != nil {
		opts = append(opts, app.WithTracker(redisinfra.NewAttemptTracker(redisClient)))
	}
	service := app.NewAttemptService(store, quizRepo, opts...)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/attempt", wsHandler.ServeAttempt)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz attempt service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the no-database demo mode with one quiz covering
// every question type.
func sampleQuizzes() map[string]domain.QuizSnapshot {
	tenMinutes := 10
	passing := 60.0
	bonus := 6.0
	return map[string]domain.QuizSnapshot{
		"quiz-geography-101": {
			ID:                     "quiz-geography-101",
			Title:                  "Geography basics",
			TimeLimitMinutes:       &tenMinutes,
			RandomizeQuestions:     true,
			RandomizeAnswers:       true,
			AllowMultipleAttempts:  true,
			PassingScore:           &passing,
			ShowResultsImmediately: true,
			ShowCorrectAnswers:     true,
			IsPublished:            true,
			Questions: []domain.Question{
				{
					ID: "q1", Type: domain.QuestionMultipleChoice, Prompt: "Capital of France?", Points: 5, Position: 1,
					Options: []domain.AnswerOption{
						{ID: "o1", Text: "Paris", IsCorrect: true, Points: &bonus, Position: 1},
						{ID: "o2", Text: "Lyon", Position: 2},
						{ID: "o3", Text: "Marseille", Position: 3},
					},
				},
				{
					ID: "q2", Type: domain.QuestionTrueFalse, Prompt: "The Nile flows north.", Points: 2, Position: 2,
					Options: []domain.AnswerOption{
						{ID: "o4", Text: "True", IsCorrect: true, Position: 1},
						{ID: "o5", Text: "False", Position: 2},
					},
				},
				{
					ID: "q3", Type: domain.QuestionShortAnswer, Prompt: "Largest ocean?", Points: 3, Position: 3,
					CorrectAnswers: []domain.CorrectAnswer{
						{Text: "Pacific", AcceptPartial: true},
					},
				},
				{
					ID: "q4", Type: domain.QuestionEssay, Prompt: "Describe how rivers shape landscapes.", Points: 10, Position: 4,
				},
			},
		},
	}
}
