package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"github.com/agentbridge/core/internal/config"
	"github.com/agentbridge/core/internal/cron"
	"github.com/agentbridge/core/internal/facade"
	"github.com/agentbridge/core/internal/ratelimit"
	"github.com/agentbridge/core/internal/sessionstore"
	"github.com/agentbridge/core/internal/supervisor"
	"github.com/agentbridge/core/internal/telemetry"
	"github.com/agentbridge/core/internal/toolpolicy"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the facade against the configured chat channel(s)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runServe() error {
	log := newLogger()
	slog.SetDefault(log)

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := setupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutCtx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := buildSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}
	defer closeStore()

	tools := toolpolicy.New(toolpolicy.Config{
		AllowedTools:    cfg.AllowedTools,
		DisallowedTools: cfg.DisallowedTools,
		ApprovedRoot:    cfg.ApprovedDirectory,
	})

	sup, err := buildSupervisor(cfg)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucketLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.CostBudgetPerMinute)
	}

	fac := facade.New(facade.Config{
		Supervisor:   sup,
		Sessions:     store,
		Tools:        tools,
		RateLimiter:  limiter,
		AgentType:    string(cfg.AgentBackend),
		AllowedTools: cfg.AllowedTools,
		Logger:       log,
	})

	bridge := telemetry.New(log)
	broadcaster := telemetry.NewBroadcaster(log)

	sweeper := cron.NewCleanupSweeper(store, cfg.Cron.CleanupExpr, time.Duration(cfg.SessionTimeoutHours)*time.Hour, log)
	go sweeper.Run(ctx)

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		watcher, err := config.Watch(cfgPath, cfg, log)
		if err != nil {
			log.Warn("config hot-reload disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/debug/events", broadcaster)
	gatewayAddr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	httpSrv := &http.Server{Addr: gatewayAddr, Handler: mux}
	go func() {
		log.Info("gateway listening", "addr", gatewayAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway server failed", "error", err)
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
	}()

	stopChannels, err := startChannels(ctx, cfg, fac, bridge, broadcaster, log)
	if err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	defer stopChannels()

	log.Info("agentbridge serving", "agent_backend", cfg.AgentBackend)
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func buildSessionStore(ctx context.Context, cfg *config.Config) (sessionstore.Store, func(), error) {
	if cfg.Database.PostgresDSN == "" {
		return sessionstore.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return sessionstore.NewPostgresStore(pool), pool.Close, nil
}

func buildSupervisor(cfg *config.Config) (supervisor.Supervisor, error) {
	switch cfg.AgentBackend {
	case config.BackendPrimaryCLI, "":
		return supervisor.NewPrimaryCLISupervisor(supervisor.PrimaryCLIConfig{
			BinaryPath:     cfg.Binary.PrimaryCLIPath,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.AgentTimeoutSeconds,
		}), nil

	case config.BackendAlternateCLI:
		return supervisor.NewAlternateCLISupervisor(supervisor.AlternateCLIConfig{
			BinaryPath:     cfg.Binary.AlternateCLIPath,
			Model:          cfg.Model,
			ForceMode:      true,
			ApproveMCPs:    true,
			TimeoutSeconds: cfg.AgentTimeoutSeconds,
		}), nil

	case config.BackendSDK:
		return supervisor.NewSDKSupervisor(supervisor.SDKConfig{
			Model:          cfg.Model,
			TimeoutSeconds: cfg.AgentTimeoutSeconds,
			MaxTurns:       cfg.MaxTurns,
		}), nil

	default:
		return nil, fmt.Errorf("unknown agent_backend %q", cfg.AgentBackend)
	}
}

// startChannels launches the inbound bridge goroutine for every
// configured chat platform and returns a function that tears all of
// them down.
func startChannels(ctx context.Context, cfg *config.Config, fac *facade.Facade, bridge *telemetry.Bridge, broadcaster *telemetry.Broadcaster, log *slog.Logger) (func(), error) {
	var stopFns []func()

	if cfg.Channels.Telegram.Enabled {
		if cfg.Channels.Telegram.Token == "" {
			return nil, fmt.Errorf("telegram enabled but AGENTBRIDGE_TELEGRAM_TOKEN is not set")
		}
		bot, err := telego.NewBot(cfg.Channels.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("build telegram bot: %w", err)
		}
		tb := newTelegramBridge(bot, fac, bridge, broadcaster, cfg.ApprovedDirectory, log)
		stop, err := tb.start(ctx)
		if err != nil {
			return nil, fmt.Errorf("start telegram: %w", err)
		}
		stopFns = append(stopFns, stop)
	}

	if cfg.Channels.Discord.Enabled {
		if cfg.Channels.Discord.Token == "" {
			return nil, fmt.Errorf("discord enabled but AGENTBRIDGE_DISCORD_TOKEN is not set")
		}
		session, err := discordgo.New("Bot " + cfg.Channels.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("build discord session: %w", err)
		}
		db := newDiscordBridge(session, fac, bridge, broadcaster, cfg.ApprovedDirectory, log)
		stop, err := db.start()
		if err != nil {
			return nil, fmt.Errorf("start discord: %w", err)
		}
		stopFns = append(stopFns, stop)
	}

	return func() {
		for _, stop := range stopFns {
			stop()
		}
	}, nil
}
