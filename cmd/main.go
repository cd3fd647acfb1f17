package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"floortrack/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app := NewApplication()

	if err := app.Initialize(); err != nil {
		logger.FatalCtx(nil, "floortrack initialization failed: %v", err)
	}
	if err := app.Start(); err != nil {
		logger.FatalCtx(app.ctx, "floortrack startup failed: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.InfoCtx(app.ctx, "received signal %v, shutting down", sig)

	// Open sessions are force-closed with reason "shutdown" during the
	// drain, so the timeout bounds how long a slow flush can hold exit.
	if err := app.Shutdown(shutdownTimeout); err != nil {
		logger.ErrorCtx(app.ctx, "shutdown incomplete: %v", err)
		os.Exit(1)
	}

	logger.InfoCtx(app.ctx, "floortrack stopped")
}
