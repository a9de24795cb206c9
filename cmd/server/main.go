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
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"pipeforge/internal/api"
	"pipeforge/internal/auth"
	"pipeforge/internal/config"
	"pipeforge/internal/logging"
	"pipeforge/internal/mcp"
	"pipeforge/internal/orchestrator"
	"pipeforge/internal/pipeline"
	"pipeforge/internal/repository"
	"pipeforge/internal/services"
	"pipeforge/internal/tls"
)

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "pipeforge-server",
		Short: "Pipeline generation and self-healing orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgFile)
		},
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "Path to config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	ctx := context.Background()

	// Initialize logging
	logger := logging.NewLogger()

	// Load configuration
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return err
	}

	logger.Info("Starting Pipeforge Orchestrator")

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return err
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	// Repository layer
	store := repository.NewPostgresTemplateStore(dbPool)

	// Collaborator clients
	modelClient := services.NewHTTPModelClient(cfg.Model.URL, time.Duration(cfg.Model.TimeoutSeconds)*time.Second)
	analyzerClient := services.NewHTTPAnalyzerClient(cfg.Analyzer.URL, cfg.RequestTimeout())
	vcsClient := services.NewGitVCSClient(cfg.VCS.URL, cfg.VCS.Token, cfg.RequestTimeout())

	// Pipeline layer
	normalizer := pipeline.NewNormalizer(cfg.Orchestrator.CallbackURL)
	selector := pipeline.NewSelector(store, logger, cfg.Orchestrator.LearnedCandidateLimit)
	generator := pipeline.NewGenerator(selector, modelClient, store, normalizer, logger)

	// Orchestration layer
	committer := orchestrator.NewCommitter(vcsClient, logger)
	monitor := orchestrator.NewMonitor(vcsClient, cfg.PollInterval(), cfg.Orchestrator.MaxPolls, logger)
	healer := orchestrator.NewHealer(vcsClient, modelClient, normalizer, committer, monitor, cfg.Orchestrator.HealingBudget, logger)
	learner := orchestrator.NewLearner(vcsClient, store, logger)
	workflows := orchestrator.NewWorkflowService(analyzerClient, generator, committer, monitor, healer, learner, logger)

	logger.Info("Service layer initialized",
		"poll_interval", cfg.PollInterval(), "max_polls", cfg.Orchestrator.MaxPolls,
		"healing_budget", cfg.Orchestrator.HealingBudget)

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("pipeforge"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		return err
	}

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// Mount REST API handlers
	apiServer := api.NewServer(workflows, store, logger)
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiGroup.POST("/workflows", apiServer.StartWorkflow)
	apiGroup.GET("/workflows/:ref", apiServer.GetWorkflowStatus)
	apiGroup.DELETE("/workflows/:ref", apiServer.CancelWorkflow)

	// The learning callback is hit by CI jobs, which carry no user token.
	e.POST("/api/v1/learn", apiServer.HandleLearnCallback)
	e.GET("/healthz", apiServer.HandleHealth)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(workflows)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	if cfg.TLS.Enable {
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop background workflow tasks between poll iterations.
		if err := workflows.Shutdown(shutdownCtx); err != nil {
			logger.Error("Workflow shutdown error", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

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

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
