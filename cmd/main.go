/*
Package main is the entry point for the Calling Card server.

It is responsible for loading configuration, initializing the global logging system,
opening the database (or in-memory stores in development), setting up the HTTP server,
starting the Nearby discovery manager, and gracefully handling operating system
interrupt signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"callingcard/internal/app/account"
	"callingcard/internal/app/db"
	"callingcard/internal/app/nearby"
	"callingcard/internal/app/prefs"
	"callingcard/internal/app/storage"
	"callingcard/internal/configs"
	"callingcard/internal/handler"
	"callingcard/internal/pkg/logx"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Dur("nearby_ttl", cfg.NearbyTTL).
		Bool("photos_enabled", cfg.PhotosEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &handler.AppDeps{Config: cfg}

	if cfg.DatabaseDSN != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to database")
		}
		defer pool.Close()

		deps.Accounts = account.NewPGRepository(pool)
		deps.Prefs = prefs.NewPGStore(pool)
		logx.Info("Database connected and migrated")
	} else {
		logx.Warn("DATABASE_URL not set; accounts and preferences are kept in memory")
		deps.Accounts = account.NewMemoryRepository()
		deps.Prefs = prefs.NewMemoryStore()
	}

	if cfg.PhotosEnabled() {
		storageService, err := storage.NewStorageService(storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize photo storage")
		}
		deps.Storage = storageService
	}

	deps.Manager = nearby.NewManager(deps.Accounts, cfg.NearbyTTL)

	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Calling Card Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	deps.Manager.Shutdown()

	logx.Info("Server gracefully stopped.")
}
