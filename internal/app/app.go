// Package app wires configuration into the stores, clients and services
// shared by the API, the worker and the admin CLI.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"classattend/internal/attempts"
	"classattend/internal/attendance"
	"classattend/internal/cloudinary"
	"classattend/internal/config"
	"classattend/internal/facematch"
	"classattend/internal/faceclient"
	"classattend/internal/identity"
	"classattend/internal/metrics"
	"classattend/internal/queue"
	"classattend/internal/store"
	"classattend/internal/verify"
)

// Components are the long-lived dependencies of a process.
type Components struct {
	Config   config.App
	DB       *store.DB
	Redis    *store.Redis
	Service  *attendance.Service
	Vectors  identity.Store
	Encoder  *faceclient.Client
	Uploader *cloudinary.Client
	Queue    queue.Queue
	Results  queue.Results
	Attempts attempts.Log
	Metrics  *metrics.Attendance
	Verifier *verify.Processor
}

// Build connects backends selected by cfg. reg may be nil to skip metrics.
func Build(ctx context.Context, cfg config.App, reg prometheus.Registerer) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, _ := cfg.Location()
	c := &Components{Config: cfg}

	var st attendance.Store
	switch cfg.StoreBackend {
	case "memory":
		log.Println("store: in-memory, data is lost on restart")
		st = attendance.NewMemoryStore()
		c.Vectors = identity.NewMemoryStore()
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.DB = db
		if cfg.AutoMigrate {
			if _, err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		st = attendance.NewRepository(db.Client)
		c.Vectors = identity.NewPostgresStore(db.Client)
	}

	switch cfg.QueueBackend {
	case "memory":
		c.Queue = queue.NewInMemory(64)
		c.Results = queue.NewMemoryResults(cfg.ResultTTL)
		c.Attempts = attempts.NewMemoryLog(cfg.AttemptLogSize)
	default:
		c.Redis = store.NewRedis(cfg.RedisAddr)
		if err := c.Redis.Ping(ctx); err != nil {
			log.Printf("warning: %v", err)
		}
		c.Queue = queue.NewRedisQueue(c.Redis.Client, "attendance:verify")
		c.Results = queue.NewRedisResults(c.Redis.Client, cfg.ResultTTL)
		c.Attempts = attempts.NewRedisLog(c.Redis.Client, cfg.AttemptLogSize)
	}

	opts := []attendance.Option{
		attendance.WithLocation(loc),
		attendance.WithDecider(facematch.NewDecider(c.Vectors, cfg.MatchThreshold)),
		attendance.WithAttemptLog(c.Attempts),
	}
	if reg != nil {
		c.Metrics = metrics.New(reg)
		opts = append(opts, attendance.WithObserver(c.Metrics))
	}
	c.Service = attendance.NewService(st, opts...)

	c.Encoder = faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if cfg.FaceSkip {
		log.Println("face service: skip mode, embeddings are fixed")
	}
	if cfg.Cloudinary.Enabled() {
		cl := cfg.Cloudinary
		c.Uploader = cloudinary.New(cl.CloudName, cl.APIKey, cl.APISecret, cl.Folder)
		log.Println("Cloudinary configured:", cl.CloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}
	c.Verifier = verify.NewProcessor(c.Service, c.Encoder, c.Queue, c.Results)
	return c, nil
}

// Close releases connections.
func (c *Components) Close() {
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
