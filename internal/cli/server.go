package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"classroom-service/internal/app"
	"classroom-service/internal/config"
	"classroom-service/internal/domain"
	"classroom-service/internal/infra/blob"
	"classroom-service/internal/infra/memory"
	pgstore "classroom-service/internal/infra/postgres"
	redisinfra "classroom-service/internal/infra/redis"
	"classroom-service/internal/logger"
	transport "classroom-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the classroom server",
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

	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		return err
	}
	defer log.Sync()

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
	sessionTTL := config.TTLDuration(cfg.Redis.SessionTTL, 12*time.Hour)
	quizTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)

	var (
		store       app.RecordStore
		loader      memory.QuizContentLoader
		projections app.ProjectionStore
	)
	if cfg.Postgres.URL != "" {
		db := openBunDB(cfg.Postgres.URL)
		defer db.Close()
		pg := pgstore.NewRecordStore(db)
		store = pg
		loader = pg

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		projections = pgstore.NewProjectionStore(pool)
	} else {
		mem := memory.NewRecordStore()
		seedDemoData(mem)
		store = mem
		loader = mem
		projections = mem
	}

	var quizzes app.QuizContentRepository
	if redisClient != nil {
		quizzes = redisinfra.NewQuizCache(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	var tokens transport.TokenResolver
	if redisClient != nil {
		tokens = redisinfra.NewTokenStore(redisClient, sessionTTL)
	} else {
		memTokens := memory.NewTokenStore(sessionTTL)
		issueDemoSessions(ctx, memTokens, log)
		tokens = memTokens
	}

	feed := app.NewProgressFeed()
	agg := app.NewProgressAggregator(store, log)
	service := app.NewLearningService(store, quizzes, agg, feed, log)
	if cfg.B2.AccountID != "" {
		media, err := blob.NewB2Storage(ctx, cfg.B2.AccountID, cfg.B2.AppKey, cfg.B2.Bucket)
		if err != nil {
			return err
		}
		service = service.WithMedia(media)
	}

	handler := transport.NewHandler(service, projections, feed, agg, tokens, log)
	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting classroom service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoData loads a small classroom into the memory store so the service
// is usable without Postgres: one class, two students, a published quiz and
// two lessons.
func seedDemoData(mem *memory.RecordStore) {
	answerB := "b"
	answerTrue := "true"

	mem.SeedUser(domain.User{ID: "teacher-1", Role: domain.RoleTeacher, DisplayName: "Ms. Rivera"})
	mem.SeedUser(domain.User{ID: "student-1", Role: domain.RoleStudent, DisplayName: "Ana"})
	mem.SeedUser(domain.User{ID: "student-2", Role: domain.RoleStudent, DisplayName: "Ben"})
	mem.SeedUser(domain.User{ID: "parent-1", Role: domain.RoleParent, DisplayName: "Ana's parent"})

	mem.SeedClass(domain.Class{ID: "class-1", TeacherID: "teacher-1", Name: "Math 101"})
	mem.Enroll("student-1", "class-1")
	mem.Enroll("student-2", "class-1")

	mem.SeedQuiz(domain.Quiz{
		ID:        "quiz-1",
		TeacherID: "teacher-1",
		Title:     "Arithmetic basics",
		Status:    domain.QuizPublished,
	}, []domain.QuizQuestion{
		{
			ID: "q1", QuizID: "quiz-1", Type: domain.QuestionMultipleChoice,
			Prompt: "What is 2 + 2?", Position: 1, Points: 1,
			CorrectAnswer: &answerB,
			Options: []domain.Option{
				{ID: "a", Text: "3"},
				{ID: "b", Text: "4"},
				{ID: "c", Text: "5"},
			},
		},
		{
			ID: "q2", QuizID: "quiz-1", Type: domain.QuestionTrueFalse,
			Prompt: "7 is a prime number.", Position: 2, Points: 1,
			CorrectAnswer: &answerTrue,
		},
	})
	mem.AssignQuiz("quiz-1", "class-1", nil)

	mem.SeedLesson(domain.Lesson{ID: "lesson-1", TeacherID: "teacher-1", Title: "Counting"})
	mem.SeedLesson(domain.Lesson{ID: "lesson-2", TeacherID: "teacher-1", Title: "Addition"})
	mem.AssignLesson("lesson-1", "class-1")
	mem.AssignLesson("lesson-2", "class-1")
}

// issueDemoSessions logs a bearer token per seeded user so the demo API is
// callable straight away.
func issueDemoSessions(ctx context.Context, tokens *memory.TokenStore, log *zap.Logger) {
	users := []domain.User{
		{ID: "teacher-1", Role: domain.RoleTeacher, DisplayName: "Ms. Rivera"},
		{ID: "student-1", Role: domain.RoleStudent, DisplayName: "Ana"},
		{ID: "student-2", Role: domain.RoleStudent, DisplayName: "Ben"},
		{ID: "parent-1", Role: domain.RoleParent, DisplayName: "Ana's parent"},
	}
	for _, u := range users {
		token, err := tokens.Issue(ctx, u)
		if err != nil {
			continue
		}
		log.Info("demo session", zap.String("user", u.ID), zap.String("token", token))
	}
}
