package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"classattend/internal/app"
	"classattend/internal/config"
)

// Worker consumes verification jobs, calls the face service and records
// check-ins.
func main() {
	cfg := config.Load()
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q; the memory queue is drained by the API process", cfg.QueueBackend)
	}
	if cfg.StoreBackend != "postgres" {
		log.Fatalf("worker needs STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations belong to the API and attendctl.
	cfg.AutoMigrate = false
	deps, err := app.Build(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("worker init failed: %v", err)
	}
	defer deps.Close()

	// Check face service health on startup
	if !cfg.FaceSkip {
		if err := deps.Encoder.Health(ctx); err != nil {
			log.Printf("WARNING: Face service not available: %v", err)
			log.Println("Worker will report encoder_unavailable until it recovers")
		} else {
			log.Println("Face service connected")
		}
	}

	log.Println("worker started, waiting for jobs...")
	if err := deps.Verifier.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("worker stopped: %v", err)
		return
	}
	log.Println("worker stopped")
}
