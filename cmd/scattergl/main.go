// Package main is the entry point for the scattergl server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlasmap-sc/scattergl/internal/api"
	"github.com/atlasmap-sc/scattergl/internal/config"
	"github.com/atlasmap-sc/scattergl/internal/scatter"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting scattergl server on port %d", cfg.Server.Port)

	ctx := context.Background()

	plot, err := scatter.Open(ctx, scatter.Config{
		BaseURL:       cfg.Data.BaseURL,
		DefaultColumn: cfg.Data.DefaultColumn,
		Width:         cfg.Render.Width,
		Height:        cfg.Render.Height,
		PointSize:     cfg.Render.PointSize,
		Colormap:      cfg.Render.DefaultColormap,
		TileCacheMB:   cfg.Cache.TileBytesMB,
		MaxConcurrent: cfg.Data.MaxConcurrent,
	})
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	defer plot.Close()

	log.Printf("Tile source: %s", cfg.Data.BaseURL)
	if desc := plot.Descriptor(); desc != nil {
		log.Printf("Dataset descriptor: %d columns, default %q", len(desc.Columns), desc.DefaultColumn)
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Plot:           plot,
		CORSOrigins:    cfg.Server.CORSOrigins,
		FrameCacheSize: cfg.Cache.FrameCacheSize,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
