package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pefman/critsim/internal/config"
	"github.com/pefman/critsim/internal/logger"
	"github.com/pefman/critsim/internal/server"
	"github.com/pefman/critsim/internal/session"
)

const ConfigPath = "config/critsim.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("CRITSIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, closer, err := logger.New(logger.Config{
		Level:          cfg.Log.Level,
		ConsoleFormat:  cfg.Log.ConsoleFormat,
		FileEnabled:    cfg.Log.FileEnabled,
		FilePath:       cfg.Log.FilePath,
		FileMaxSizeMB:  cfg.Log.FileMaxSizeMB,
		FileMaxBackups: cfg.Log.FileMaxBackups,
		FileMaxAgeDays: cfg.Log.FileMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	log.Info("config loaded", "addr", cfg.Addr(), "max_trials", cfg.Simulation.MaxTrials, "batch", cfg.Simulation.BatchSize)

	srv := server.New(cfg, session.NewStore(), log)
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("critsim API listening", "addr", cfg.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.SweepLoop(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
