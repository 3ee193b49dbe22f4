package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"taxassist/backend/internal/api"
	"taxassist/backend/internal/auth"
	"taxassist/backend/internal/config"
	"taxassist/backend/internal/logging"
	"taxassist/backend/internal/mcp"
	"taxassist/backend/internal/nlp"
	"taxassist/backend/internal/repository"
	"taxassist/backend/internal/session"
	selfsigned "taxassist/backend/internal/tls"
	"taxassist/backend/internal/workflow"
)

func main() {
	root := &cobra.Command{
		Use:   "taxassist-server",
		Short: "Conversational 1040NR intake service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info().
		Str("environment", cfg.Environment).
		Str("addr", cfg.Server.Addr).
		Bool("auth", cfg.Auth.Enable).
		Msg("starting tax intake service")

	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer dbPool.Close()

	if err := repository.EnsureSchema(ctx, dbPool); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info().Msg("database connected")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	// Stores.
	progressStore := repository.NewPostgresProgressStore(dbPool, logger)
	catalogStore := repository.NewPostgresCatalogStore(dbPool, logger)
	fieldStore := repository.NewPostgresFieldStore(dbPool, logger)
	sessions := session.NewStore(rdb, cfg.Workflow.SessionTTL, logger)

	// Language-model collaborators share one client.
	aiCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		aiCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	aiClient := openai.NewClientWithConfig(aiCfg)

	classifier := nlp.NewClassifier(aiClient, cfg.OpenAI.ClassifierModel, cfg.Workflow.ClassifierTimeout, logger)
	generator := nlp.NewQuestionGenerator(aiClient, cfg.OpenAI.GeneratorModel, logger)
	agent := nlp.NewAgent(aiClient, cfg.OpenAI.AgentModel, cfg.Workflow.AgentTimeout, sessions, fieldStore, logger)

	catalog := workflow.NewCatalogService(catalogStore, generator, nlp.FallbackQuestions(), cfg.Workflow.GenerationTimeout, logger)
	engine := workflow.NewEngine(catalog, progressStore, classifier, agent, cfg.Workflow.MaxCorrections, logger)

	// Echo server.
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware("taxassist"))

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize auth: %w", err)
	}
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	server := api.NewServer(engine, fieldStore, logger)
	e.GET("/health", server.HandleHealth)

	protected := e.Group("")
	protected.Use(echo.WrapMiddleware(authz.RequireAuth))
	server.RegisterRoutes(protected)
	logger.Info().Msg("REST handlers mounted")

	mcpServer := mcp.NewServer(fieldStore)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	logger.Info().Msg("MCP handlers mounted")

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Bool("tls", cfg.TLS.Enable).Msg("server starting")
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				serverErrors <- fmt.Errorf("tls enabled but cert/key file not provided")
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) && len(cfg.TLS.Hostnames) > 0 {
				if err := selfsigned.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
					logger.Error().Err(err).Msg("failed to generate self-signed cert")
				}
			}
			serverErrors <- httpServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- httpServer.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
			if err := httpServer.Close(); err != nil {
				logger.Error().Err(err).Msg("server close error")
			}
		}
		logger.Info().Msg("server stopped gracefully")
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	logger.Debug().Msg("initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
