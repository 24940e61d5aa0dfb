package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/irkan/assistant-admin-panel-backend/internal/apikey"
	"github.com/irkan/assistant-admin-panel-backend/internal/auth"
	"github.com/irkan/assistant-admin-panel-backend/internal/bridge"
	"github.com/irkan/assistant-admin-panel-backend/internal/config"
	"github.com/irkan/assistant-admin-panel-backend/internal/engine"
	"github.com/irkan/assistant-admin-panel-backend/internal/httpapi"
	"github.com/irkan/assistant-admin-panel-backend/internal/observability"
	"github.com/irkan/assistant-admin-panel-backend/internal/session"
	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	engineClient := newEngineClient(cfg, logger)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTokenTTL)
	keys := apikey.NewValidator(st, logger)
	sessions := session.NewManager(cfg.SessionInactivityTimeout)

	voiceBridge := bridge.NewHandler(bridge.Config{
		AllowAnyOrigin:     cfg.AllowAnyOrigin,
		ConnectTimeout:     cfg.EngineConnectTimeout,
		MaxSessionDuration: cfg.MaxSessionDuration,
		DefaultModel:       cfg.GeminiDefaultModel,
		DefaultVoice:       cfg.GeminiDefaultVoice,
		DefaultTemperature: cfg.GeminiDefaultTemp,
	}, keys, engineClient, sessions, metrics, logger)
	sessions.SetExpireHook(voiceBridge.HandleExpired)

	api := httpapi.New(cfg, st, tokens, keys, sessions, voiceBridge, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

func newLogger(environment string) (*zap.Logger, error) {
	if strings.EqualFold(environment, "production") {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newEngineClient(cfg config.Config, logger *zap.Logger) engine.Client {
	mode := strings.ToLower(strings.TrimSpace(cfg.EngineProvider))
	switch mode {
	case "gemini":
		logger.Info("speech engine: gemini live")
		return engine.NewGeminiClient(engine.GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			WSBaseURL:      cfg.GeminiWSBaseURL,
			ConnectTimeout: cfg.EngineConnectTimeout,
		})
	case "mock":
		logger.Info("speech engine: mock")
		return engine.NewMockClient()
	default: // auto
		if cfg.GeminiAPIKey != "" {
			logger.Info("speech engine: gemini live")
			return engine.NewGeminiClient(engine.GeminiConfig{
				APIKey:         cfg.GeminiAPIKey,
				WSBaseURL:      cfg.GeminiWSBaseURL,
				ConnectTimeout: cfg.EngineConnectTimeout,
			})
		}
		logger.Info("speech engine: mock (no GEMINI_API_KEY)")
		return engine.NewMockClient()
	}
}
