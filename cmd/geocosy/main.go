package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/joshp123/geocosy/internal/config"
	"github.com/joshp123/geocosy/internal/core"
	"github.com/joshp123/geocosy/internal/logger"
	"github.com/joshp123/geocosy/internal/plugins"
	"github.com/joshp123/geocosy/internal/rate"
	"github.com/joshp123/geocosy/internal/router"
	"github.com/joshp123/geocosy/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", envOrDefault("GEOCOSY_CONFIG", config.DefaultPath), "path to config.yaml")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.New(logger.InfoLevel).Fatalw("load config", "path", *configPath, "err", err)
	}

	log := logger.New(cfg.Core.LogLevel)
	defer func() { _ = log.Sync() }()

	if cfg.Core.LogLevel != logger.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	compiled := plugins.Compiled(cfg, log)
	if err := core.ValidatePlugins(compiled); err != nil {
		log.Fatalw("invalid plugins", "err", err)
	}
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		log.Fatalw("enabled plugins", "err", err)
	}
	active := core.FilterPlugins(compiled, enabled, false)
	defer closePlugins(active, log)

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		log.Warnw("write dashboards", "dir", cfg.Core.DashboardDir, "err", err)
	}

	metricsRegistry := core.MetricsRegistry(active)
	metricsRegistry.MustRegister(core.BuildInfo(version))
	metricsRegistry.MustRegister(rate.MetricsCollectors()...)

	engine := server.NewEngine(log.Named("http"), metricsRegistry, core.DashboardsMap(active))
	router.RegisterPlugins(engine, active)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, plugin := range active {
		runner, ok := plugin.(core.Runner)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(id string, runner core.Runner) {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil {
				log.Errorw("plugin stopped", "plugin", id, "err", err)
			}
		}(plugin.ID(), runner)
	}

	log.Infow("geocosy starting", "version", version, "plugins", len(active))
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, engine, log)
	if err := httpServer.Run(ctx); err != nil {
		log.Errorw("http serve", "err", err)
		stop()
	}

	log.Infow("shutting down")
	wg.Wait()
}

// loadConfig reads path, or the environment alone when path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.FromEnv()
	}
	return config.Load(path)
}

func closePlugins(active []core.Plugin, log *logger.Logger) {
	for _, plugin := range active {
		closer, ok := plugin.(core.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			log.Warnw("close plugin", "plugin", plugin.ID(), "err", err)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
