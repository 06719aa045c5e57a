// Command main is the entry point for the FEC STL catalog server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/morroware/FEC-STL-sub000/internal/bootstrap"
	"github.com/morroware/FEC-STL-sub000/internal/cache"
	"github.com/morroware/FEC-STL-sub000/internal/config"
	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/server"
	"github.com/morroware/FEC-STL-sub000/internal/storage"
)

// @title FEC STL Catalog API
// @version 1.0
// @description Community catalog for 3D printable models: uploads, categories, favorites and statistics.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.SetLogger(middleware.Logger)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "fecstl-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Redis is optional; GetClient stays nil when it is unreachable.
	cache.InitRedis(cfg.RedisURL)

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}

	store, err := bootstrap.InitRuntime(context.Background(), cfg, files, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	srv, err := server.NewServer(cfg, server.Deps{
		Store: store,
		Files: files,
		Redis: cache.GetClient(),
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal(err)
	}
}
