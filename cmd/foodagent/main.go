package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/config"
	dbRedis "github.com/MARYCOMPLEX/food-agent/internal/db/redis"
	logpkg "github.com/MARYCOMPLEX/food-agent/internal/logger"
	"github.com/MARYCOMPLEX/food-agent/internal/metrics"
	"github.com/MARYCOMPLEX/food-agent/internal/repository/contextcache"
	"github.com/MARYCOMPLEX/food-agent/internal/repository/turnstore"
	"github.com/MARYCOMPLEX/food-agent/internal/transport/amap"
	chiTransport "github.com/MARYCOMPLEX/food-agent/internal/transport/chi"
	llm "github.com/MARYCOMPLEX/food-agent/internal/transport/openai"
	"github.com/MARYCOMPLEX/food-agent/internal/transport/xhs"
	enrichuc "github.com/MARYCOMPLEX/food-agent/internal/usecase/enrich"
	followupuc "github.com/MARYCOMPLEX/food-agent/internal/usecase/followup"
	preprocessuc "github.com/MARYCOMPLEX/food-agent/internal/usecase/preprocess"
	scoringuc "github.com/MARYCOMPLEX/food-agent/internal/usecase/scoring"
	searchuc "github.com/MARYCOMPLEX/food-agent/internal/usecase/search"
	"github.com/MARYCOMPLEX/food-agent/internal/usecase/stream"
	tagginguc "github.com/MARYCOMPLEX/food-agent/internal/usecase/tagging"
	"github.com/MARYCOMPLEX/food-agent/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting food-agent API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create redis store", zap.Error(err))
	}
	defer store.Close()

	// Wait for redis to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to redis")

	turns, err := turnstore.Open(cfg.TurnStore.Path)
	if err != nil {
		logger.Fatal("Failed to open turn store", zap.Error(err))
	}
	defer func() { _ = turns.Close() }()
	logger.Info("Opened turn store", zap.String("path", cfg.TurnStore.Path))

	// Register collaborator metrics explicitly (no init())
	metrics.RegisterCollaboratorMetrics()

	// LLM collaborators share one chat client
	chatClient := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})
	parser := llm.NewIntentParser(chatClient)
	tagger := llm.NewTagger(chatClient)
	interpreter := llm.NewInterpreter(chatClient)
	analyzer := llm.NewAnalyzer(chatClient)
	logger.Info("LLM collaborators created", zap.String("model", cfg.LLM.Model))

	source := xhs.NewClient(&xhs.Config{
		BaseURL: cfg.Source.BaseURL,
		Token:   cfg.Source.Token,
		Timeout: time.Duration(cfg.Source.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	// POI enrichment is optional; without an AMap key recommendations ship
	// without address and rating details.
	var enricher searchuc.Enricher
	if cfg.POI.APIKey != "" {
		poi := amap.NewClient(&amap.Config{
			APIKey:  cfg.POI.APIKey,
			BaseURL: cfg.POI.BaseURL,
			Timeout: time.Duration(cfg.POI.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		enricher = enrichuc.New(poi, store, time.Duration(cfg.POI.CacheTTLHours)*time.Hour, metrics.POICacheTotal, logger)
		logger.Info("POI enrichment enabled")
	} else {
		logger.Warn("POI enrichment disabled: no poi.api_key configured")
	}

	// Use case services
	pre := preprocessuc.New(cfg.Search.MaxUnits)
	taggingSvc := tagginguc.New(tagger, logger)
	engine := scoringuc.New(cfg.Scoring)
	classifier := followupuc.New(interpreter, logger)

	orchestrator := searchuc.New(
		parser, source,
		pre, taggingSvc, engine,
		classifier, analyzer, enricher,
		searchuc.Options{
			PerQueryLimit: cfg.Search.PerQueryLimit,
			PhaseWidth:    cfg.Search.PhaseWidth,
			DocWorkers:    cfg.Search.DocWorkers,
			QueryTimeout:  time.Duration(cfg.Search.QueryTimeoutSec) * time.Second,
			FastMode:      cfg.Search.FastMode,
			FastModeLimit: cfg.Search.FastModeLimit,
		},
		logger,
	)

	// Session layer
	contexts := contextcache.New(store, time.Duration(cfg.Stream.ContextTTLHours)*time.Hour)
	hub := stream.NewHub(time.Duration(cfg.Stream.HeartbeatSec) * time.Second)
	sessions := stream.NewManager(hub, orchestrator, contexts, turns, logger)

	server := chiTransport.NewServer(sessions, store, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
