package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/ipscope/internal/config"
	"github.com/HerbHall/ipscope/internal/event"
	"github.com/HerbHall/ipscope/internal/inventory"
	"github.com/HerbHall/ipscope/internal/recon"
	"github.com/HerbHall/ipscope/internal/registry"
	"github.com/HerbHall/ipscope/internal/server"
	"github.com/HerbHall/ipscope/internal/store"
	"github.com/HerbHall/ipscope/internal/version"
	"github.com/HerbHall/ipscope/pkg/plugin"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg := config.New(v)

	logger, err := newLogger(v)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("ipscope server starting", zap.String("version", version.Short()))

	db, err := store.New(v.GetString("database.path"))
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bus := event.NewBus(logger.Named("event"))

	reg := registry.New(logger.Named("registry"))
	reconModule := recon.New()
	// Register all plugins (compile-time composition).
	for _, p := range []plugin.Plugin{inventory.New(), reconModule} {
		name := p.Info().Name
		if !v.GetBool("plugins." + name + ".enabled") {
			logger.Info("plugin disabled by configuration", zap.String("name", name))
			continue
		}
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("validate plugins: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Metrics: metrics,
		}
	}
	if err := reg.InitAll(ctx, deps); err != nil {
		return err
	}
	if err := reg.StartAll(ctx); err != nil {
		return err
	}

	opts := server.Options{
		Addr:         fmt.Sprintf("%s:%d", v.GetString("server.host"), v.GetInt("server.port")),
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
	}
	if v.GetBool("metrics.enabled") {
		opts.Gatherer = metrics
	}
	if _, ok := reg.Get("recon"); ok && !reg.IsDisabled("recon") {
		warnScanTimeout(logger, reconModule.MaxScanDuration(), opts.WriteTimeout)
	}
	srv := server.New(opts, reg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("ipscope server ready", zap.String("addr", opts.Addr))

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("server.shutdown_timeout"))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	reg.StopAll(shutdownCtx)

	logger.Info("ipscope server stopped")
	return nil
}

// warnScanTimeout flags configurations where the largest accepted scan can
// outlive the HTTP write timeout.
func warnScanTimeout(logger *zap.Logger, maxScan, writeTimeout time.Duration) bool {
	if maxScan == 0 || writeTimeout <= 0 || maxScan < writeTimeout {
		return false
	}
	logger.Warn("largest scan may exceed server.write_timeout; lower plugins.recon.max_scan_hosts or raise the timeout",
		zap.Duration("max_scan_duration", maxScan),
		zap.Duration("write_timeout", writeTimeout),
	)
	return true
}

// newLogger builds the process logger from log.level and log.format
// ("json" or "console").
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if strings.EqualFold(v.GetString("log.format"), "console") {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
