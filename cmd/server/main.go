// Package main is the entry point for the APK build server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apkforge/internal/api"
	"apkforge/internal/apikey"
	"apkforge/internal/catalog"
	"apkforge/internal/config"
	"apkforge/internal/jobs"
	"apkforge/internal/toolchain"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	registry, err := catalog.Load(cfg.TemplatesConfig)
	if err != nil {
		log.Fatalf("Failed to load template registry: %v", err)
	}

	jobsStore, err := jobs.NewStore(cfg.JobsDBPath())
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}
	defer jobsStore.Close()

	keyStore, err := apikey.NewStore(cfg.KeysDBPath())
	if err != nil {
		log.Fatalf("Failed to open API key store: %v", err)
	}
	defer keyStore.Close()

	// Background retention sweep for old build jobs
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	jobsStore.StartSweeper(sweepCtx, cfg.SweepInterval, cfg.JobRetention)

	// Create server
	srv := api.NewServer(cfg, registry, jobsStore, keyStore, toolchain.ExecRunner{})
	router := api.NewRouter(srv)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Builds on the synchronous endpoint can take minutes
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopSweep()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
