package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/goclaw/actiond/config"
	"github.com/goclaw/actiond/pkg/api/middleware"
	"github.com/goclaw/actiond/pkg/logger"
	"github.com/goclaw/actiond/pkg/version"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runDaemon,
	}
	cmd.Flags().IntP("port", "p", 0, "Override HTTP port")
	cmd.Flags().String("program", "", "Override the watched program file")
	cmd.Flags().Bool("debug", false, "Enable debug logging")
	return cmd
}

// buildOverrides maps set flags onto configuration keys. Overrides win over
// every other layer.
func buildOverrides(cmd *cobra.Command) map[string]interface{} {
	overrides := make(map[string]interface{})

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		overrides["log.level"] = v
	}
	if cmd.Flags().Lookup("port") != nil {
		if v, _ := cmd.Flags().GetInt("port"); v != 0 {
			overrides["server.port"] = v
		}
	}
	if cmd.Flags().Lookup("program") != nil {
		if v, _ := cmd.Flags().GetString("program"); v != "" {
			overrides["editor.program_path"] = v
		}
	}
	if cmd.Flags().Lookup("debug") != nil {
		if v, _ := cmd.Flags().GetBool("debug"); v {
			overrides["log.level"] = "debug"
		}
	}
	return overrides
}

func loadConfig(cmd *cobra.Command) (*config.Config, *config.Loader, error) {
	path, _ := cmd.Flags().GetString("config")
	loader := config.NewLoader()
	cfg, err := loader.Load(path, buildOverrides(cmd))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration:\n%w", err)
	}
	return cfg, loader, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Close()
	logger.SetGlobal(log)

	log.Info("Starting actiond",
		"version", version.Version,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	limiter := middleware.NewLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		stopWatch, err := watchConfig(ctx, path, loader, buildOverrides(cmd), log, limiter)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	return supervise(ctx, cfg, log, limiter, func() (*config.Config, error) {
		next, _, err := loadConfig(cmd)
		return next, err
	})
}

// supervise runs daemon cycles. A reload requested from inside a cycle starts
// the next one with freshly loaded configuration.
func supervise(ctx context.Context, cfg *config.Config, log logger.Logger, limiter *rate.Limiter, reload func() (*config.Config, error)) error {
	for {
		d := newDaemon(cfg, log, limiter)
		reloaded, err := d.run(ctx)
		if err != nil {
			return err
		}
		if !reloaded || ctx.Err() != nil {
			log.Info("actiond stopped gracefully")
			return nil
		}

		next, err := reload()
		if err != nil {
			log.Error("reload kept previous configuration", "error", err)
		} else {
			cfg = next
			log.SetLevel(logger.ParseLevel(cfg.Log.Level))
		}
		log.Info("restarting after reload")
	}
}

// watchConfig applies hot reloadable settings when the config file changes.
func watchConfig(ctx context.Context, path string, loader *config.Loader, overrides map[string]interface{}, log logger.Logger, limiter *rate.Limiter) (func(), error) {
	w, err := config.NewWatcher(path, loader,
		config.WithOverrides(overrides),
		config.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	w.OnChange(func(cfg *config.Config) {
		hot := config.ExtractHotReloadable(cfg)
		log.SetLevel(logger.ParseLevel(hot.LogLevel))
		if limiter != nil && hot.RequestsPerSecond > 0 {
			limiter.SetLimit(rate.Limit(hot.RequestsPerSecond))
			limiter.SetBurst(max(hot.RateLimitBurst, 1))
		}
		log.Info("configuration reloaded", "log_level", hot.LogLevel, "requests_per_second", hot.RequestsPerSecond)
	})

	go func() {
		if err := w.Watch(ctx); err != nil {
			log.Error("config watcher stopped", "error", err)
		}
	}()
	return func() { _ = w.Stop() }, nil
}
