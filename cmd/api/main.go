package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classattend/internal/app"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/handler"
	"classattend/internal/httpmiddleware"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := app.Build(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// The memory queue only reaches consumers in this process.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := deps.Verifier.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("in-process verifier stopped: %v", err)
			}
		}()
		log.Println("verification jobs processed in-process (QUEUE_BACKEND=memory)")
	}

	var uploader handler.Uploader
	if deps.Uploader != nil {
		uploader = deps.Uploader
	}
	h := handler.New(handler.Deps{
		Service:   deps.Service,
		Vectors:   deps.Vectors,
		Encoder:   deps.Encoder,
		Uploader:  uploader,
		Verifier:  deps.Verifier,
		Attempts:  deps.Attempts,
		Signer:    auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		DevTokens: cfg.DevTokens,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	if cfg.RateLimitPerMin > 0 {
		var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		if deps.Redis != nil {
			limiter = httpmiddleware.NewRedisWindow(deps.Redis.Client, cfg.RateLimitPerMin)
		}
		r.Use(httpmiddleware.RateLimit(limiter))
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}
		healthy := true
		if deps.DB != nil {
			ok := deps.DB.Healthy(ctx)
			checks["db"], healthy = ok, healthy && ok
		}
		if deps.Redis != nil {
			ok := deps.Redis.Healthy(ctx)
			checks["redis"], healthy = ok, healthy && ok
		}
		// The face service degrades biometric routes only.
		checks["face_service"] = deps.Encoder.Health(ctx) == nil

		status := http.StatusOK
		checks["status"] = "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			checks["status"] = "degraded"
		}
		c.JSON(status, checks)
	})

	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
