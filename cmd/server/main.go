// Command server boots the bridge process: it wires config, logging,
// Mongo/Redis, the session registry, the outbound coordinator, the
// agent/TTS/STT adapters, the WebSocket listener, and the control
// plane into one Gin server, then serves until SIGINT/SIGTERM.
// Grounded on the teacher's UnifiedServer bootstrap in this same file
// (Redis/Mongo dial, provider wiring, graceful shutdown), trimmed to
// the bridge's single voice-call pipeline instead of the teacher's
// API-Gateway+Dialer+Jobs trio.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vocalbridge/bridge/internal/agent"
	"github.com/vocalbridge/bridge/internal/control"
	"github.com/vocalbridge/bridge/internal/coordinator"
	"github.com/vocalbridge/bridge/internal/httpserver"
	"github.com/vocalbridge/bridge/internal/listener"
	"github.com/vocalbridge/bridge/internal/recorder"
	"github.com/vocalbridge/bridge/internal/session"
	"github.com/vocalbridge/bridge/internal/stt"
	"github.com/vocalbridge/bridge/internal/tts"
	"github.com/vocalbridge/bridge/pkg/config"
	"github.com/vocalbridge/bridge/pkg/logger"
	"github.com/vocalbridge/bridge/pkg/mongo"
	"github.com/vocalbridge/bridge/pkg/ratelimit"
	"github.com/vocalbridge/bridge/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Log.Info("starting vocal bridge",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.ServePort),
	)

	if cfg.OTELEnabled {
		shutdown, err := telemetry.InitTracing("vocal-bridge", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("failed to initialize opentelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("opentelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	redisClient, err := connectRedis(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("failed to connect to redis", zap.Error(err))
	}

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("failed to disconnect mongo", zap.Error(err))
		}
	}()

	registry := session.NewRegistry()
	coord := coordinator.New(cfg.OutboundEnabled)
	rec := recorder.New(recorder.NewMongoStore(mongoClient), logger.Log)

	var engines []agent.Engine
	if openai := agent.NewOpenAIEngine(cfg.SpeechAPIKey, cfg.ResponseSystemPrompt, logger.Log); openai.IsAvailable() {
		engines = append(engines, openai)
		logger.Log.Info("openai response engine initialized", zap.String("model", cfg.ResponseModel))
	} else {
		logger.Log.Warn("no response engine API key configured - agent responses will be unavailable")
	}
	engineManager := agent.NewManager(engines, logger.Log)

	ttsAdapter := tts.New(tts.Config{
		APIKey: cfg.SpeechAPIKey,
		Model:  cfg.TTS.Model,
		Voice:  cfg.TTS.Voice,
	})
	sttAdapter := stt.New(stt.Config{
		APIKey: cfg.SpeechAPIKey,
		Model:  cfg.Streaming.STTModel,
	}, logger.Log)

	connLimiter := ratelimit.NewConnectLimiter(redisClient, 10, 60, 300)

	lis := listener.New(cfg, logger.Log, registry, coord, rec, engineManager, ttsAdapter, sttAdapter, connLimiter)
	controlHandler := control.New(cfg, registry, coord, logger.Log)

	router := httpserver.New(httpserver.Deps{
		Cfg:         cfg,
		Logger:      logger.Log,
		Registry:    registry,
		Listener:    lis,
		Control:     controlHandler,
		RedisClient: redisClient,
	})

	srv := &http.Server{
		Addr:         cfg.ServeBind + ":" + cfg.ServePort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("vocal bridge listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down vocal bridge...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("vocal bridge exited")
}

func connectRedis(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
