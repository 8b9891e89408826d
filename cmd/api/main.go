package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanlanch/leadconsole/config"
	"github.com/jordanlanch/leadconsole/pkg/api/handlers"
	custommw "github.com/jordanlanch/leadconsole/pkg/api/middleware"
	"github.com/jordanlanch/leadconsole/pkg/auth"
	"github.com/jordanlanch/leadconsole/pkg/batch"
	"github.com/jordanlanch/leadconsole/pkg/cache"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/jobs"
	"github.com/jordanlanch/leadconsole/pkg/leads"
	"github.com/jordanlanch/leadconsole/pkg/leadstore"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/metrics"
	"github.com/jordanlanch/leadconsole/pkg/notifier"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
	"github.com/jordanlanch/leadconsole/pkg/query"
	"github.com/jordanlanch/leadconsole/pkg/testdata"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("configuration loaded", "environment", cfg.APIEnvironment)

	// Error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.APIEnvironment,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	pipelines := pipeline.Defaults()

	// Document store. MONGO_URI=memory runs an in-memory store seeded with
	// generated leads, for local development without a database.
	var store domain.LeadStore
	var mongoStore *leadstore.Mongo
	if cfg.MongoURI == "memory" {
		mem := leadstore.NewMemory(pipelines)
		testdata.SeedMemory(mem, pipelines, 200)
		store = mem
		log.Info("using seeded in-memory store")
	} else {
		var err error
		mongoStore, err = leadstore.NewMongo(context.Background(), cfg.MongoURI, cfg.MongoDB, pipelines)
		if err != nil {
			log.Error("failed to connect to document store", "error", err)
			os.Exit(1)
		}
		store = mongoStore
	}

	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	prometheusMetrics := metrics.New()
	sender := notifier.NewSendGrid(cfg.EmailFrom, cfg.EmailFromName, cfg.SendGridAPIKey, log)

	// Per-pipeline engines share the store, cache and notifier.
	deps := make(map[string]handlers.PipelineDeps, len(pipelines.All()))
	for _, pipe := range pipelines.All() {
		composer := query.NewComposer(store, pipe, query.Options{
			PageSize:          cfg.PageSize,
			MaxSearchResults:  cfg.MaxSearchResults,
			FallbackThreshold: cfg.FallbackThreshold,
			FallbackScanLimit: cfg.FallbackScanLimit,
			DefaultRegion:     cfg.DefaultRegion,
		}, log)
		service := leads.NewService(store, nil, redisClient, redisClient, pipe, log)
		engine := batch.NewEngine(store, sender, nil, pipe, batch.Options{
			ChunkSize:  cfg.BatchChunkSize,
			ChunkDelay: cfg.BatchChunkDelay,
		}, log)
		deps[pipe.Key] = handlers.PipelineDeps{Composer: composer, Service: service, Batch: engine}
	}

	leadHandler := handlers.NewLeadHandler(deps, redisClient, prometheusMetrics, cfg.DebounceWindow, log)

	// Morning callback digest
	digest := jobs.NewCallbackDigest(store, sender, pipelines, cfg.CallbackDigestTo, log)
	cronManager := jobs.NewCronManager(digest, log)
	if err := cronManager.SetupJobs(cfg.CallbackDigestSpec); err != nil {
		log.Error("failed to setup cron jobs", "error", err)
		os.Exit(1)
	}
	cronManager.Start()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request", "method", c.Request().Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "Lead Console API",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})
	e.GET("/health", func(c echo.Context) error {
		if _, err := redisClient.Redis.Ping(c.Request().Context()).Result(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status": "healthy",
			"cache":  "up",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	// Development-only token mint, for driving the API without an identity
	// provider in front of it.
	if cfg.APIEnvironment == "development" {
		v1.POST("/dev/token", func(c echo.Context) error {
			var actor domain.Actor
			if err := c.Bind(&actor); err != nil || !actor.Role.Valid() || actor.ID == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "id, name and a valid role are required"})
			}
			token, err := auth.GenerateJWT(actor, cfg.JWTSecret, cfg.JWTExpirationHours)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to generate token"})
			}
			return c.JSON(http.StatusOK, map[string]string{"token": token})
		})
	}

	protected := v1.Group("/:pipeline")
	protected.Use(custommw.ActorMiddleware(cfg.JWTSecret))
	{
		leadsGroup := protected.Group("/leads")
		{
			leadsGroup.GET("", leadHandler.List)
			leadsGroup.GET("/view", leadHandler.View)
			leadsGroup.POST("/batch", leadHandler.RunBatch)
			leadsGroup.GET("/:id", leadHandler.Get)
			leadsGroup.DELETE("/:id", leadHandler.Delete, custommw.RequireElevated())
			leadsGroup.PUT("/:id/note", leadHandler.SaveNote)
			leadsGroup.PUT("/:id/status", leadHandler.ChangeStatus)
			leadsGroup.PUT("/:id/assign", leadHandler.Assign)
			leadsGroup.PUT("/:id/unassign", leadHandler.Unassign)
		}
	}

	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Info("lead console api starting", "address", address, "pipelines", len(deps))

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	cronManager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	if mongoStore != nil {
		if err := mongoStore.Close(ctx); err != nil {
			log.Warn("failed to close document store", "error", err)
		}
	}
	log.Info("server stopped")
}
