package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quotebot/internal/api/handlers"
	"quotebot/internal/auth"
	"quotebot/internal/config"
	"quotebot/internal/logger"
	"quotebot/internal/repository/postgres"
	"quotebot/internal/repository/redis"
	"quotebot/internal/repository/store"
	"quotebot/internal/service/callback"
	"quotebot/internal/service/completion"
	"quotebot/internal/service/conversation"
	"quotebot/internal/service/dify"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize database
	logger.Log.Info("Initializing database...")
	db, err := postgres.NewPostgresDB(cfg.Database)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Initialize Redis
	logger.Log.Info("Connecting to Redis...")
	cache, err := redis.NewClient(cfg.Redis)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer cache.Close()

	// Wire services
	dual := store.NewDual(cache, db, cfg.Redis.ConversationTTL)
	backend := dify.NewClient(cfg.Dify)
	detector := completion.NewDetector(cfg.Completion)
	deliverer := callback.NewDeliverer(cfg.Callback)
	convService := conversation.NewService(dual, backend, detector, deliverer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	convService.StartFinalizer()

	authMiddleware := auth.NewMiddleware(cfg.Auth)
	convHandler := handlers.NewConversationHandlers(convService, cache, cfg.RateLimit)
	healthHandler := handlers.NewHealthHandlers(cache, db)

	// Go 1.22+ method-based routing with path parameters
	mux := http.NewServeMux()

	// CORS preflight handler for OPTIONS requests
	corsHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.WriteHeader(http.StatusOK)
	}

	// Public routes
	mux.HandleFunc("GET /api/health", enableCORS(healthHandler.HealthHandler))
	mux.HandleFunc("OPTIONS /api/health", corsHandler)

	// Protected routes
	mux.HandleFunc("POST /api/v1/start_conversation", enableCORS(authMiddleware.Require(convHandler.StartConversationHandler)))
	mux.HandleFunc("OPTIONS /api/v1/start_conversation", corsHandler)
	mux.HandleFunc("POST /api/v1/chat", enableCORS(authMiddleware.Require(convHandler.ChatHandler)))
	mux.HandleFunc("OPTIONS /api/v1/chat", corsHandler)
	mux.HandleFunc("GET /api/v1/history/{id}", enableCORS(authMiddleware.Require(convHandler.HistoryHandler)))
	mux.HandleFunc("OPTIONS /api/v1/history/{id}", corsHandler)
	mux.HandleFunc("GET /api/v1/conversation/{id}/status", enableCORS(authMiddleware.Require(convHandler.StatusHandler)))
	mux.HandleFunc("OPTIONS /api/v1/conversation/{id}/status", corsHandler)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: mux,
	}

	go func() {
		logger.Log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server shutdown failed")
	}

	// In-flight requests have drained; let queued callback deliveries
	// finish before the deferred store closes run
	convService.Close()
	convService.WaitForFinalizations()

	logger.Log.Info("Server stopped")
}
