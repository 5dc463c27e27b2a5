package app

import (
	"context"
	"oraclehub/internal/config"
	"os/signal"
	"syscall"
	"time"
)

// Run We assemble the container, start it, wait for the signal or a dead server and stop
func Run(cfg *config.Config) error {
	ctxBuild, cancelBuild := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBuild()

	container, cleanup, err := Build(ctxBuild, cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	if err = container.Start(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
		container.log.Infof("Shutdown signal received")
	case runErr = <-container.Errors():
		container.log.Errorf("HTTP server failed: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err = container.Stop(shutdownCtx); err != nil {
		return err
	}
	return runErr
}
