package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/agent"
	"github.com/parkpulse/parkpulse/internal/api"
	"github.com/parkpulse/parkpulse/internal/auth"
	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/intent"
	"github.com/parkpulse/parkpulse/internal/ledger"
	"github.com/parkpulse/parkpulse/internal/llm"
	"github.com/parkpulse/parkpulse/internal/logging"
	"github.com/parkpulse/parkpulse/internal/metrics"
	"github.com/parkpulse/parkpulse/internal/notify"
	"github.com/parkpulse/parkpulse/internal/session"
	"github.com/parkpulse/parkpulse/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the chat agent and the proposal closer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.RequireLLM(); err != nil {
			return err
		}
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}

		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var sessions session.Store
	if cfg.RedisURL != "" {
		rs, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rs.Close()
		sessions = rs
		logger.Info("using redis session store")
	} else {
		sessions = session.NewMemoryStore()
		logger.Info("using in-memory session store")
	}

	gen, err := llm.New(ctx, llm.Options{
		Provider:     cfg.LLMProvider,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create text generator: %w", err)
	}
	classifier, err := intent.NewClassifier(gen, logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	ledgerClient := ledger.NewClient(ledger.Options{
		BaseURL:      cfg.HederaServiceURL,
		Network:      cfg.HederaNetwork,
		ClientID:     cfg.HederaClientID,
		ClientSecret: cfg.HederaClientSecret,
		TokenURL:     cfg.HederaTokenURL,
	}, logger)
	if !ledgerClient.IsConnected(ctx) {
		logger.Warn("ledger bridge not reachable at startup, proposals will be kept locally until it is", zap.String("url", cfg.HederaServiceURL))
	}

	deps := agent.Deps{
		Sessions:        sessions,
		Classifier:      classifier,
		Authorizer:      auth.NewService(database, logger),
		Parks:           database,
		Ledger:          ledgerClient,
		Writer:          gen,
		Audit:           ledger.NewAuditLog(ledgerClient),
		Metrics:         m,
		Logger:          logger,
		DefaultDeadline: cfg.DefaultDeadline,
	}
	if cfg.EmailEnabled() {
		deps.Notifier = notify.NewEmail(notify.EmailConfig{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			Username:      cfg.SMTPUsername,
			Password:      cfg.SMTPPassword,
			From:          cfg.EmailFrom,
			RatePerSecond: cfg.EmailRatePerSecond,
		})
	} else {
		logger.Info("SMTP not configured, resident emails disabled")
	}
	if cfg.DiscordEnabled() {
		discord, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			return err
		}
		defer discord.Close()
		deps.Announcer = discord
	}

	ag, err := agent.New(deps)
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ag.Close(drainCtx); err != nil {
			logger.Warn("background tasks still running at shutdown", zap.Error(err))
		}
	}()

	closer := worker.NewCloser(ledgerClient, cfg.ProposalCloseInterval, logger)
	closer.Start()
	defer closer.Stop()

	proxies, err := api.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	server := api.New(ag, database, ledgerClient, api.Options{
		JWTSecret:      cfg.JWTSecret,
		RatePerSecond:  cfg.AgentRatePerSecond,
		RateBurst:      cfg.AgentRateBurst,
		TrustedProxies: proxies,
		Gatherer:       reg,
		Logger:         logger,
	})
	if err := server.Serve(ctx, cfg.WebBind); err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
