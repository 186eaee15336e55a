package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autovid/autovid/internal/animation"
	"github.com/autovid/autovid/internal/api"
	"github.com/autovid/autovid/internal/config"
	"github.com/autovid/autovid/internal/db"
	"github.com/autovid/autovid/internal/flags"
	"github.com/autovid/autovid/internal/media"
	"github.com/autovid/autovid/internal/pipeline"
	"github.com/autovid/autovid/internal/queue"
	"github.com/autovid/autovid/internal/services"
	"github.com/autovid/autovid/internal/worker"
)

func main() {
	log.Println("Starting AutoVid API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queues
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Readiness flags and one-shot gates share the Redis instance
	flagStore, err := flags.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to flag store: %v", err)
	}
	defer flagStore.Close()

	orch := pipeline.NewOrchestrator(q, flagStore, database)

	// Create API handler
	handler := api.NewHandler(database, orch)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		ffmpegSvc := media.NewFFmpeg()
		openaiSvc := services.NewOpenAIService(cfg.OpenAIKey, cfg.ScriptModel)

		// Image provider — Flux service preferred, Gemini Imagen as fallback
		var imageSvc services.ImageService
		if cfg.FluxAPIURL != "" {
			imageSvc = services.NewFluxService(cfg.FluxAPIURL, cfg.FluxAPIKey)
			log.Println("Image provider: Flux")
		} else {
			imageSvc = services.NewGeminiImageService(cfg.GeminiKey)
			log.Println("Image provider: Gemini Imagen")
		}

		ttsSvc := services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		voiceSvc := services.NewVoiceoverService(ttsSvc, ffmpegSvc)

		// Remote animation client. With animation enabled a broken endpoint
		// id is a startup error, not a silent downgrade to still clips.
		var animClient animation.Client
		if cfg.Animation.Enabled {
			client, err := animation.NewHTTPClient(
				cfg.Animation.EndpointID,
				time.Duration(cfg.Animation.PollIntervalSec)*time.Second,
				time.Duration(cfg.Animation.JobTimeoutSec)*time.Second,
			)
			if err != nil {
				log.Fatalf("ANIMATION_ENABLED is set but the endpoint is unusable: %v", err)
			}
			animClient = client
			log.Printf("Animation enabled (endpoint: %s, strategy: %s)",
				cfg.Animation.EndpointID, cfg.Animation.Strategy)
		}
		videoMgr := animation.NewManager(ffmpegSvc, animClient, imageSvc, cfg.AssetsDir, cfg.Animation, cfg.RenderConcurrency)

		cdnSvc := services.NewCDNService(cfg.CDNAPIURL)

		// YouTube upload is optional; nil when OAuth env vars are absent
		ytSvc := services.NewYouTubeService()
		if ytSvc != nil {
			log.Println("YouTube upload enabled")
		}

		executor := pipeline.NewExecutor(database, orch, openaiSvc, imageSvc, voiceSvc, videoMgr, cdnSvc, ytSvc, cfg.AssetsDir, cfg.Animation.BaseSeed)
		w := worker.New(q, executor)

		// Start worker in background
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
