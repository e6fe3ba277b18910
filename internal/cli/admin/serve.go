package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/studium-labs/studium/internal/api/handlers"
	"github.com/studium-labs/studium/internal/chat"
	"github.com/studium-labs/studium/internal/config"
	"github.com/studium-labs/studium/internal/database"
	"github.com/studium-labs/studium/internal/jobs"
	"github.com/studium-labs/studium/internal/llm"
	"github.com/studium-labs/studium/internal/openai"
	"github.com/studium-labs/studium/internal/rag"
	"github.com/studium-labs/studium/internal/repository"
	"github.com/studium-labs/studium/internal/server"
	"github.com/studium-labs/studium/internal/storage"
	"github.com/studium-labs/studium/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the studium API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if cfg.HasSentry() {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewDocumentChunkRepository(pool)
	sessionRepo := repository.NewChatSessionRepository(pool)
	configRepo := repository.NewChatConfigRepository(pool)
	searchLogRepo := repository.NewSearchLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var storageClient handlers.DocumentStorage
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		s3Client, err := storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		storageClient = s3Client
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("STUDIUM_OPENAI_API_KEY is required for query and document embeddings")
	}
	embeddingClient := openai.NewClient(cfg.OpenAIAPIKey)

	var indexWorker *jobs.Worker
	if !cfg.IndexerDisabled {
		pollInterval, err := time.ParseDuration(cfg.IndexerPollInterval)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_POLL_INTERVAL: %w", err)
		}
		indexProcessor := jobs.NewIndexWorker(documentRepo, chunkRepo, embeddingClient, txRunner)
		indexWorker = jobs.NewWorker(indexProcessor, pollInterval)
		go indexWorker.Start(ctx)
	}

	registry := buildProviderRegistry(ctx, cfg)
	if len(registry.Names()) == 0 {
		return fmt.Errorf("no model provider configured: set at least one provider API key")
	}
	log.Printf("model providers registered: %v", registry.Names())

	retriever := rag.NewRetriever(embeddingClient, chunkRepo)
	ragSvc := rag.NewService(retriever, searchLogRepo, documentRepo, chunkRepo, configRepo)
	chatSvc := chat.NewService(sessionRepo, configRepo, registry, retriever)

	routerCfg := server.RouterConfig{
		APIToken:      cfg.APIToken,
		ChatHandler:   handlers.NewChatHandler(chatSvc),
		RAGHandler:    handlers.NewRAGHandler(ragSvc, storageClient),
		ConfigHandler: handlers.NewConfigHandler(configRepo),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if indexWorker != nil {
		indexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// buildProviderRegistry registers a factory for every provider whose API
// key is configured. Providers are constructed lazily, bound to the model
// each session requests.
func buildProviderRegistry(ctx context.Context, cfg *config.Config) *llm.Registry {
	registry := llm.NewRegistry()

	if cfg.OpenAIAPIKey != "" {
		registry.Register(llm.ProviderOpenAI, func(model string) (llm.Provider, error) {
			return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, model), nil
		})
	}
	if cfg.AnthropicAPIKey != "" {
		registry.Register(llm.ProviderAnthropic, func(model string) (llm.Provider, error) {
			return llm.NewAnthropicProvider(cfg.AnthropicAPIKey, model), nil
		})
	}
	if cfg.GoogleAPIKey != "" {
		registry.Register(llm.ProviderGoogle, func(model string) (llm.Provider, error) {
			return llm.NewGoogleProvider(ctx, cfg.GoogleAPIKey, model)
		})
	}
	if cfg.OpenRouterAPIKey != "" {
		registry.Register(llm.ProviderOpenRouter, func(model string) (llm.Provider, error) {
			return llm.NewOpenRouterProvider(llm.OpenRouterConfig{
				APIKey:   cfg.OpenRouterAPIKey,
				Model:    model,
				BaseURL:  cfg.OpenRouterBaseURL,
				SiteURL:  cfg.OpenRouterSiteURL,
				SiteName: cfg.OpenRouterSiteName,
			}), nil
		})
	}

	return registry
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
