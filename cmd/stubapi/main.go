// @title Adaptive Learning Quiz API
// @version 1.0
// @description Stub of the quiz service used by the quiz submission and feedback flow.
// @host localhost:8090
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "adaptive-learning/cmd/stubapi/docs"
	"adaptive-learning/internal/adapter"
	"adaptive-learning/internal/adapter/evaluator"
	"adaptive-learning/internal/cache"
	"adaptive-learning/internal/config"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/metrics"
	"adaptive-learning/internal/repository"
	"adaptive-learning/internal/server"
	"adaptive-learning/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.Logger); err != nil {
		panic(err)
	}
	appLogger := logger.Get()
	defer logger.Sync()

	ctx := context.Background()

	quizRepository := repository.NewMemoryQuizRepository()
	seeded, err := repository.SeedQuizzes(ctx, quizRepository, cfg.Stub.SeedFile)
	if err != nil {
		appLogger.Fatal("Failed to seed quizzes", zap.Error(err))
	}
	appLogger.Info("Seeded quizzes", zap.Int("count", seeded))
	resultRepository := repository.NewMemoryResultRepository()

	var cacheAdapter domain.Cache
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cacheAdapter = adapter.NewRedisCacheAdapter(redisClient)
		appLogger.Info("Successfully connected to Redis", zap.String("address", cfg.Redis.Address))
	} else {
		cacheAdapter = adapter.NewMemoryCache()
		appLogger.Info("Using in-process cache")
	}

	var generator domain.FeedbackGenerator
	if cfg.LLM.Server != "" {
		ollamaHTTPClient := &http.Client{Timeout: cfg.LLM.Timeout}
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.LLM.Server),
			ollama.WithModel(cfg.LLM.Model),
			ollama.WithHTTPClient(ollamaHTTPClient),
		)
		if err != nil {
			appLogger.Fatal("Failed to create LLM client", zap.Error(err))
		}
		generator = evaluator.NewLLMFeedbackGenerator(llm, evaluator.WithCallTimeout(cfg.LLM.Timeout))
		appLogger.Info("Using LLM feedback", zap.String("server", cfg.LLM.Server), zap.String("model", cfg.LLM.Model))
	} else {
		generator = evaluator.NewTemplateFeedbackGenerator()
		appLogger.Info("No llm.server configured, using template feedback")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewServerMetrics(registry)

	quizService := service.NewQuizService(quizRepository, resultRepository, cacheAdapter, generator, service.QuizServiceConfig{
		CacheTTL: cfg.Stub.FeedbackCacheTTL,
	})
	authService, err := service.NewAuthService(cfg.Stub.JWTSecret, service.DefaultTokenTTL)
	if err != nil {
		appLogger.Fatal("Failed to create AuthService", zap.Error(err))
	}

	app := server.NewApp(server.Dependencies{
		QuizService: quizService,
		AuthService: authService,
		Metrics:     appMetrics,
		Gatherer:    registry,
	})

	go func() {
		appLogger.Info("Starting server", zap.Int("port", cfg.Stub.Port), zap.String("env", cfg.Logger.Env))
		if err := app.Listen(":" + strconv.Itoa(cfg.Stub.Port)); err != nil {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := quizService.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Feedback tasks did not finish before shutdown", zap.Error(err))
	}
	appLogger.Info("Server exited gracefully")
}
