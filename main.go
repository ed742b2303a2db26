package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/puzzleduel/config"
	"github.com/wfunc/puzzleduel/logger"
	"github.com/wfunc/puzzleduel/persistence"
	"github.com/wfunc/puzzleduel/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infof("Match history backend: %q", cfg.Database.Driver)

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, db)
	gameServer.Monitor().RegisterRuntimeCollectors()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Failed to start server: %v", err)
		}
	case <-ctx.Done():
		logger.Log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("Shutdown: %v", err)
	}
}
