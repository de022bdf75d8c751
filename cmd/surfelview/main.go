// Package main is the entry point for the surfelview point-cloud viewer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/app"
	"github.com/Faultbox/surfelview/internal/config"
	"github.com/Faultbox/surfelview/internal/engine/residency"
	"github.com/Faultbox/surfelview/internal/engine/viewer"
	"github.com/Faultbox/surfelview/internal/engine/workingset"
	"github.com/Faultbox/surfelview/internal/logger"
	"github.com/Faultbox/surfelview/internal/metrics"
	"github.com/Faultbox/surfelview/internal/store"
)

func main() {
	flags := config.BindFlags(pflag.CommandLine)
	pflag.Parse()
	if err := flags.SetPositional(pflag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Usage error: %v\n", err)
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: true,
		File:    logFile(cfg.Logging.LogFile),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, flags); err != nil {
		logger.Error("viewer error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("viewer closed normally")
}

func logFile(path string) logger.FileConfig {
	if path == "" {
		return logger.FileConfig{}
	}
	return logger.DefaultFileConfig(path)
}

func run(cfg *config.Config, flags *config.Flags) error {
	log := logger.Log
	logger.Info("=== surfelview ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if cfg.Dataset.Path == "" {
		return fmt.Errorf("no dataset: pass a path or set dataset.path")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		srv := metrics.Start(cfg.Metrics.Addr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	st, err := store.Open(cfg.Dataset.Backend, cfg.Dataset.Path, log)
	if err != nil {
		return err
	}
	defer st.Close()

	tree, err := st.OpenTree()
	if err != nil {
		return err
	}
	log.Info("dataset opened",
		zap.String("path", cfg.Dataset.Path),
		zap.String("backend", cfg.Dataset.Backend),
		zap.Int("nodes", tree.Len()),
		zap.Int("blocks", tree.TotalBlocks()),
	)

	cache := residency.New(tree, st, residency.WithLogger(log))
	manager := workingset.New(cache, workingset.WithLogger(log))
	v := viewer.NewContext(tree, manager, viewer.DefaultSettings(), cfg.Window.Width, cfg.Window.Height, log)
	v.ApplyLOD(cfg.Settings())

	a, err := app.New(app.Config{
		Title:  "surfelview",
		Window: cfg.Window,
		Camera: cfg.Camera,
	}, v, log)
	if err != nil {
		v.Close()
		return err
	}
	defer a.Close()

	if path := cfg.Source(); path != "" {
		w, err := config.NewWatcher(path, func() (*config.Config, error) { return config.Load(flags) }, log)
		if err != nil {
			return err
		}
		defer w.Stop()
		if err := w.Start(ctx); err != nil {
			log.Warn("config hot reload disabled", zap.Error(err))
		} else {
			a.WatchConfig(w.Updates())
		}
	}

	return a.Run(ctx)
}
