package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/api/handlers"
	"github.com/cloo-solutions/supportdesk/internal/api/middleware"
	"github.com/cloo-solutions/supportdesk/internal/config"
	"github.com/cloo-solutions/supportdesk/internal/jobs"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/cloo-solutions/supportdesk/internal/openai"
	"github.com/cloo-solutions/supportdesk/internal/repository"
	"github.com/cloo-solutions/supportdesk/internal/server"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/cloo-solutions/supportdesk/internal/session"
	"github.com/cloo-solutions/supportdesk/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the support desk API server, the WhatsApp webhook and the campaign worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.APIToken == "" {
		return errors.New("SUPPORTDESK_API_TOKEN is required")
	}

	log, err := logger.New(cfg.LogMode, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// 10% sampling in production, everything elsewhere.
	sampleRate := 1.0
	if cfg.Environment == "production" {
		sampleRate = 0.1
	}
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
	}, log)
	if err != nil {
		log.Warn("telemetry init failed, continuing without tracing", "error", err)
	} else {
		defer shutdownTelemetry()
	}

	if portFlag, _ := cmd.Flags().GetString("port"); cmd.Flags().Changed("port") {
		cfg.Port = portFlag
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := runMigrations(cfg.DatabaseURL, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Info("connected to database")

	sessions, closeSessions, err := newSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	convCfg := service.DefaultConversationConfig()
	convCfg.ReplyTimeout = cfg.ReplyTimeout
	conversation := service.NewConversationServiceWithConfig(
		openai.NewChatClient(cfg.OpenAIAPIKey, cfg.ChatModel),
		a.retrieval,
		repository.NewOrderRepository(a.pool),
		sessions,
		log,
		convCfg,
	)

	var textSender handlers.TextSender = unconfiguredSender{}
	if a.sender != nil {
		textSender = a.sender
	}

	webhook := handlers.NewWebhookHandler(cfg.WhatsAppVerifyToken, conversation, a.campaigns, textSender, log).
		WithTimeout(cfg.WebhookTimeout)

	router := server.NewRouter(server.RouterConfig{
		TokenValidator:   middleware.NewStaticToken(cfg.APIToken, cfg.Owner),
		Logger:           log,
		KnowledgeHandler: handlers.NewKnowledgeHandler(a.retrieval),
		CampaignHandler:  handlers.NewCampaignHandler(a.campaigns),
		WebhookHandler:   webhook,
	})

	var worker *jobs.Worker
	if cfg.HasCampaignWorker() {
		worker = jobs.NewWorker(jobs.NewCampaignWorker(a.campaigns, jobs.DefaultBatchSize, log), cfg.CampaignWorkerInterval, log)
		go worker.Start(ctx)
		log.Info("campaign worker started", "interval", cfg.CampaignWorkerInterval)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	if worker != nil {
		worker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// newSessionStore uses Redis when configured and an in-process store otherwise.
func newSessionStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (session.Store, func(), error) {
	sessionCfg := session.Config{
		TTL:         cfg.SessionTTL,
		MaxMessages: cfg.SessionMaxMessages,
		MaxUsers:    cfg.SessionMaxUsers,
	}

	if !cfg.HasRedis() {
		log.Info("using in-memory session store")
		return session.NewMemoryStore(sessionCfg), func() {}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("using redis session store", "addr", cfg.RedisAddr)
	return session.NewRedisStore(rdb, sessionCfg), func() { rdb.Close() }, nil
}

func runMigrations(databaseURL string, log *logger.Logger) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info("migrations: no migrations applied")
	case err != nil:
		return fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	default:
		log.Info("migrations: database is up to date", "version", version)
	}

	return nil
}
