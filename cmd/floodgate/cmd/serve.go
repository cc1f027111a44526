package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/floodgatehq/floodgate/internal/api"
	"github.com/floodgatehq/floodgate/internal/auth"
	"github.com/floodgatehq/floodgate/internal/config"
	"github.com/floodgatehq/floodgate/internal/notify"
	"github.com/floodgatehq/floodgate/internal/observability"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/provider/localfs"
	"github.com/floodgatehq/floodgate/internal/provider/s3"
	"github.com/floodgatehq/floodgate/internal/ratelimit"
	"github.com/floodgatehq/floodgate/internal/slogutil"
	"github.com/floodgatehq/floodgate/internal/transfer"
	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Floodgate gateway",
		Long:  "Start the Floodgate gateway using configuration from the YAML file.",
		RunE:  runServe,
	}

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		slog.Default().Error("failed to load config", "err", err)
		return err
	}

	logger, leveler := slogutil.Setup(cfg.Log)
	slog.SetDefault(logger)

	configManager := config.NewManager(cfg, configFile)
	configManager.OnConfigChange(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Log.Level != newConfig.Log.Level {
			leveler.SetLevel(slogutil.ParseLevel(newConfig.Log.Level))
			logger.Info("log level updated", "level", newConfig.Log.Level)
		}
	})

	logger.Info("starting floodgate",
		"addr", cfg.Server.Address(),
		"auth_mode", cfg.Auth.Mode,
		"rate_limiting", cfg.RateLimit.IsEnabled())

	store, err := buildRateLimitStore(cmd.Context(), cfg)
	if err != nil {
		logger.Error("failed to initialise rate limit store", "err", err)
		return err
	}
	if store != nil {
		defer store.Close()
	}
	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Limit, cfg.RateLimit.Window(), cfg.RateLimit.IsEnabled())

	var authHandler auth.Handler
	switch cfg.Auth.Mode {
	case "remote":
		authHandler = auth.NewRemoteHandler(cfg.Auth.URL, logger)
	default:
		authHandler = auth.NewStaticHandler(cfg.Auth.Secret, cfg.Auth.Grants)
	}

	registry := provider.NewRegistry()
	registry.Register(localfs.ProviderName, localfs.NewFactory(afero.NewBasePathFs(afero.NewOsFs(), cfg.Providers.LocalFS.Root)))
	registry.Register(s3.ProviderName, s3.NewFactory())

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, logger)
	}

	metrics := observability.New()
	engine := &transfer.Engine{
		SpoolDir:          cfg.Transfer.SpoolDir,
		InactivityTimeout: cfg.Transfer.InactivityTimeout(),
		Logger:            logger,
		OnBytes: func(n int64) {
			metrics.AddTransferBytes("transfer", n)
		},
	}

	server := api.NewServer(authHandler, registry, limiter, notifier, metrics, engine, logger)

	app := fiber.New(fiber.Config{
		AppName:               "floodgate",
		StreamRequestBody:     true,
		BodyLimit:             1 << 30,
		DisableStartupMessage: true,
	})
	server.SetupRoutes(app)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 30m", func() {
		cleanSpoolDir(logger, cfg.Transfer.SpoolDir, time.Duration(cfg.Transfer.SpoolMaxAgeMinutes)*time.Minute)
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return app.Listen(cfg.Server.Address())
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("server failed", "err", err)
		return err
	}
	return nil
}

func buildRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, error) {
	if !cfg.RateLimit.IsEnabled() {
		return nil, nil
	}
	switch cfg.RateLimit.Backend {
	case "redis":
		return ratelimit.NewRedisStore(cfg.RateLimit.RedisURL)
	case "postgres":
		return ratelimit.NewPostgresStore(ctx, cfg.RateLimit.PostgresDSN)
	default:
		return ratelimit.NewMemoryStore(cfg.RateLimit.Window()), nil
	}
}

// cleanSpoolDir sweeps temporary transfer spool files past their maximum
// age; orphans appear when transfers are aborted mid-flight.
func cleanSpoolDir(logger *slog.Logger, dir string, maxAge time.Duration) {
	if dir == "" || maxAge <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("spool cleanup failed", "file", path, "err", err)
			} else {
				logger.Debug("spool file removed", "file", path)
			}
		}
	}
}
