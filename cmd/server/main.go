package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whotypes/rolekeeper/internal/api"
	"github.com/whotypes/rolekeeper/internal/config"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	data.InitValidator()

	// Interface values stay nil without storage so the API answers 503.
	var (
		tempRoles  api.TemporaryRoleReader
		supporters api.SupporterReader
	)
	if cfg.StorageEnabled() {
		store, err := data.NewFirestoreClient(context.Background(), cfg.FirestoreProjectID, cfg.FirestoreDatabaseID)
		if err != nil {
			logger.Warn("Failed to initialize Firestore storage", zap.Error(err))
		} else {
			defer store.Close()
			tempRoles, supporters = store, store
		}
	}

	if cfg.APIKey == "" {
		logger.Warn("API_KEY is not set; guild endpoints are unauthenticated")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(tempRoles, supporters, cfg.APIKey, logger).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-done
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	logger.Info("Server exited")
}
