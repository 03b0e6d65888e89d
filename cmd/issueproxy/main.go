package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clintrovert/issueproxy/internal/api/rest"
	"github.com/clintrovert/issueproxy/internal/captcha"
	"github.com/clintrovert/issueproxy/internal/config"
	"github.com/clintrovert/issueproxy/internal/github"
	"github.com/clintrovert/issueproxy/internal/jira"
	"github.com/clintrovert/issueproxy/internal/metrics"
	"github.com/clintrovert/issueproxy/internal/moderation"
	"github.com/clintrovert/issueproxy/internal/pipeline"
	"github.com/clintrovert/issueproxy/internal/ratelimit"
	"github.com/clintrovert/issueproxy/internal/secrets"
	"github.com/clintrovert/issueproxy/internal/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Parameter store lookups are only wired when a parameter name is configured
	var store secrets.ParameterStore
	if cfg.GitHub.PrivateKeyParam != "" || cfg.Turnstile.SecretKeyParam != "" {
		ssmStore, err := secrets.NewSSMStore(ctx)
		if err != nil {
			logger.Fatal("failed to create parameter store client", zap.Error(err))
		}
		store = ssmStore
	}

	resolver := secrets.NewResolver(
		secrets.Chain{
			secrets.Literal(cfg.GitHub.PrivateKey),
			secrets.File(cfg.GitHub.PrivateKeyFile, logger),
			secrets.Parameter(store, cfg.GitHub.PrivateKeyParam),
		},
		secrets.Chain{
			secrets.Literal(cfg.Turnstile.SecretKey),
			secrets.File(cfg.Turnstile.SecretKeyFile, logger),
			secrets.Parameter(store, cfg.Turnstile.SecretKeyParam),
		},
		logger,
	)

	engine, err := templates.Load()
	if err != nil {
		logger.Fatal("failed to load issue templates", zap.Error(err))
	}

	deps := pipeline.Dependencies{
		Limiter:   ratelimit.NewSlidingWindow(),
		Secrets:   resolver,
		Captcha:   captcha.NewVerifier(cfg.Turnstile.VerifyURL, cfg.UpstreamTimeout, m, logger),
		Templates: engine,
	}

	switch cfg.Tracker {
	case config.TrackerJira:
		deps.Tracker = jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Username, cfg.Jira.ProjectKey, cfg.Jira.IssueType, cfg.UpstreamTimeout, m, logger)
	default:
		githubClient, err := github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Repo, cfg.UpstreamTimeout, m, logger)
		if err != nil {
			logger.Fatal("failed to create github client", zap.Error(err))
		}
		deps.Tracker = githubClient
		deps.Issuer = githubClient
	}

	if cfg.Moderation.APIKey != "" {
		deps.Screener = moderation.NewScreener(cfg.Moderation.APIKey, cfg.Moderation.BaseURL, cfg.Moderation.Model, cfg.UpstreamTimeout, m, logger)
	}

	p := pipeline.New(pipeline.Settings{
		RateLimit:      cfg.RateLimit.Max,
		RateWindow:     cfg.RateLimit.Window,
		StaticToken:    cfg.StaticToken(),
		AppID:          cfg.GitHub.AppID,
		InstallationID: cfg.GitHub.InstallationID,
	}, deps, m, logger)

	// Create REST API handler
	restHandler := rest.NewHandler(p, cfg.MaxBodyBytes, logger)

	router := rest.NewRouter(restHandler, cfg.AllowedOrigins, m.Handler())

	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting issue proxy",
			zap.String("address", addr),
			zap.String("tracker", cfg.Tracker),
			zap.Bool("moderation", deps.Screener != nil),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	return zapCfg.Build()
}
