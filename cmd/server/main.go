package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/worker"
	ws "github.com/storyreel/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize provider clients
	replicateClient := client.NewReplicateClient(&cfg.Replicate)
	falClient := client.NewFalClient(&cfg.Fal)
	stabilityClient := client.NewStabilityClient(&cfg.Stability)
	elevenLabsClient := client.NewElevenLabsClient(&cfg.ElevenLabs)
	sunoClient := client.NewSunoClient(&cfg.Suno)
	visionClient := client.NewVisionClient(&cfg.Vision)
	renderClient := client.NewRenderClient(&cfg.Render)

	// Initialize R2 client (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, assets stay on provider URLs")
	}

	// Initialize services
	store := service.NewProjectStore(redisClient)
	orchestrator := service.NewProviderOrchestrator(store, cfg.Pipeline.MaxProviderFallbacks,
		replicateClient, falClient, stabilityClient, elevenLabsClient, sunoClient)
	cache := service.NewAssetCache(storage,
		time.Duration(cfg.Pipeline.ImageTimeoutSeconds)*time.Second,
		time.Duration(cfg.Pipeline.MediaTimeoutSeconds)*time.Second)
	analyzer := service.NewQualityAnalyzer(visionClient, renderClient, cfg.Quality)
	regen := service.NewRegenerationLoop(orchestrator, cache, analyzer, store, hub, cfg.Pipeline.MaxRegenerationAttempts)
	coordinator := service.NewRenderCoordinator(renderClient, store, hub, cfg.Render)
	pipeline := service.NewPipelineService(store, asynqClient, storage, cfg.Render)

	// Initialize handlers
	projectHandler := handler.NewProjectHandler(pipeline, validate)
	renderHandler := handler.NewRenderHandler(pipeline)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		renderOK := renderClient.HealthCheck(c.Context()) == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"replicate":  replicateClient.IsConfigured(),
				"fal":        falClient.IsConfigured(),
				"stability":  stabilityClient.IsConfigured(),
				"elevenlabs": elevenLabsClient.IsConfigured(),
				"suno":       sunoClient.IsConfigured(),
				"vision":     visionClient.IsConfigured(),
				"r2":         storage != nil,
				"render":     renderOK,
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Project routes
	projects := api.Group("/projects")
	projects.Post("/", projectHandler.Create)
	projects.Post("/:projectId/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), projectHandler.Generate)
	projects.Get("/:projectId/status", projectHandler.Status)
	projects.Post("/:projectId/cancel", projectHandler.Cancel)
	projects.Post("/:projectId/render", rateLimiter.RenderLimit(cfg.RateLimit.RenderPerHour), renderHandler.Start)

	// Render job routes
	render := api.Group("/render")
	render.Get("/:jobId/status", renderHandler.Status)
	render.Post("/:jobId/cancel", renderHandler.Cancel)
	render.Get("/:jobId/output", renderHandler.Output)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/projects/:projectId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("projectId"))
	}))
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, store, orchestrator, cache, regen, coordinator, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	store *service.ProjectStore,
	orchestrator *service.ProviderOrchestrator,
	cache *service.AssetCache,
	regen *service.RegenerationLoop,
	coordinator *service.RenderCoordinator,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				service.QueueGenerate: 6,
				service.QueueRender:   4,
			},
			LogLevel: asynqLogLevel,
		},
	)

	generateWorker := worker.NewGenerateWorker(store, orchestrator, cache, regen, hub, cfg.Pipeline)
	renderWorker := worker.NewRenderWorker(store, coordinator)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generateWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeRender, renderWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
