package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"studybuddy-backend/internal/audio"
	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/database"
	"studybuddy-backend/internal/handlers"
	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/middleware"
	"studybuddy-backend/internal/repository"
	"studybuddy-backend/internal/router"
	"studybuddy-backend/internal/services"
	"studybuddy-backend/internal/websocket"
	"studybuddy-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	handlers.SetLogger(log)

	log.Info("starting StudyBuddy backend", "env", cfg.Env, "history_backend", cfg.HistoryBackend)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("PostgreSQL connected")

	if err := database.RunMigrations(pool, "migrations", log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}
	log.Info("database migrations applied")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("Redis connected")

	// ──── Step 4: Initialize Gemini Gateway ────
	gateway, err := services.NewGeminiGateway(services.GatewayConfig{
		APIKey:         cfg.GeminiAPIKey,
		AnalysisModel:  cfg.GeminiAnalysisModel,
		SpeechModel:    cfg.GeminiSpeechModel,
		Voice:          cfg.GeminiVoice,
		ConcurrentReqs: cfg.GeminiConcurrentReqs,
		AnalyzeTimeout: cfg.AnalyzeTimeout,
		SpeechTimeout:  cfg.SpeechTimeout,
	}, log.With("component", "gemini"))
	if err != nil {
		log.Fatal("Gemini client initialization failed", "error", err)
	}
	defer gateway.Close()
	log.Info("Gemini gateway initialized", "model", cfg.GeminiAnalysisModel, "speech_model", cfg.GeminiSpeechModel)

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	jobRepo := repository.NewJobRepo(redisClients.Queue)
	lockRepo := repository.NewLockRepo(redisClients.Queue)
	revocations := repository.NewRevocationRepo(redisClients.Queue)
	history := newHistoryStore(cfg.HistoryBackend, redisClients.Queue, pool, log)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.AccessTokenTTL, revocations)
	authService := services.NewAuthService(userRepo, revocations, jwtAuth)
	notifier := services.NewNotifier(redisClients.Queue, log.With("component", "notifier"))
	pipeline := services.NewSessionPipeline(gateway, history, services.NewRedisSubmitGuard(lockRepo), notifier, log.With("component", "pipeline"))
	materials := services.NewMaterialService(services.NewFileExtractService(), services.NewYouTubeService(log.With("component", "youtube")))

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.FrontendURL, log.With("component", "websocket"))
	defer wsHub.Close()

	players := services.NewPlaybackRegistry(
		gateway,
		func(userID string) audio.Sink { return websocket.NewAudioSink(wsHub, userID) },
		notifier.PlaybackStateChanged,
		log.With("component", "playback"),
		services.WithFormat(cfg.SpeechSampleRate, cfg.SpeechChannels),
	)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, jobRepo, lockRepo, pipeline, notifier, cfg.WorkerCount, log.With("component", "worker"))
	workerPool.Start()

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	studyHandler := handlers.NewStudyHandler(pipeline, gateway, jobRepo, cfg.SpeechSampleRate, cfg.SpeechChannels)
	playbackHandler := handlers.NewPlaybackHandler(players, pipeline)
	materialsHandler := handlers.NewMaterialsHandler(materials)
	jobsHandler := handlers.NewJobsHandler(jobRepo)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		studyHandler,
		playbackHandler,
		materialsHandler,
		jobsHandler,
		wsHub.HandleWebSocket,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		players.StopAll()
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("StudyBuddy backend ready",
		"api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
		"ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", "error", err)
	}
}

func newHistoryStore(backend string, rdb *redis.Client, pool *pgxpool.Pool, log *logger.Logger) repository.HistoryStore {
	switch backend {
	case "postgres":
		return repository.NewPostgresHistoryStore(pool, log.With("component", "history"))
	case "memory":
		log.Warn("history is kept in memory and will not survive a restart")
		return repository.NewMemoryHistoryStore()
	default:
		return repository.NewRedisHistoryStore(rdb, log.With("component", "history"))
	}
}
