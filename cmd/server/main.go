package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/adapters/llm"
	"github.com/jonasttaws/nova-sonic-training/adapters/model"
	adaptermongo "github.com/jonasttaws/nova-sonic-training/adapters/mongo"
	"github.com/jonasttaws/nova-sonic-training/adapters/storage"
	"github.com/jonasttaws/nova-sonic-training/adapters/stt"
	"github.com/jonasttaws/nova-sonic-training/adapters/tts"
	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
	"github.com/jonasttaws/nova-sonic-training/internal/api"
	"github.com/jonasttaws/nova-sonic-training/internal/registry"
	"github.com/jonasttaws/nova-sonic-training/internal/websocket"
	"github.com/jonasttaws/nova-sonic-training/usecase"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	reg := registry.New(sessionCeiling(), logger)
	reg.StartReaper()
	defer reg.StopReaper()

	transport, err := buildModelTransport(logger)
	if err != nil {
		logger.Fatal("Failed to build model transport", zap.Error(err))
	}

	transcripts, mongoClient := buildTranscriptStore(logger)
	if mongoClient != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Close(ctx)
		}()
	}

	coordinator := usecase.NewCoordinator(reg, transport, transcripts, logger)

	hub := websocket.NewHub(coordinator, logger)
	go hub.Run()

	server := api.NewServer(hub, reg, transcripts, logger)
	server.Register(e)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func sessionCeiling() int {
	if raw := os.Getenv("SESSION_CEILING"); raw != "" {
		if ceiling, err := strconv.Atoi(raw); err == nil && ceiling > 0 {
			return ceiling
		}
	}
	return registry.DefaultCeiling
}

// buildModelTransport selects the speech model backend. MODEL_TRANSPORT is
// "realtime" for a remote speech-to-speech endpoint, "composed" for the
// STT + chat + TTS pipeline, anything else runs the scripted mock.
func buildModelTransport(logger *zap.Logger) (repositories.ModelTransport, error) {
	switch os.Getenv("MODEL_TRANSPORT") {
	case "realtime":
		endpoint := os.Getenv("MODEL_ENDPOINT")
		if endpoint == "" {
			logger.Fatal("MODEL_ENDPOINT is required for the realtime transport")
		}
		return model.NewRealtimeTransport(endpoint, os.Getenv("MODEL_API_KEY"), logger), nil

	case "composed":
		languageModel, err := llm.NewGeminiLLM(logger)
		if err != nil {
			return nil, err
		}
		synthesizer, err := tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
		if err != nil {
			return nil, err
		}
		return model.NewComposedTransport(&stt.GoogleSpeechToText{}, languageModel, synthesizer, logger), nil

	default:
		logger.Warn("No model transport configured, using scripted mock")
		return model.NewMockTransport(), nil
	}
}

// buildTranscriptStore uses MongoDB when configured and falls back to the
// in-memory store otherwise.
func buildTranscriptStore(logger *zap.Logger) (repositories.TranscriptRepository, *adaptermongo.Client) {
	if os.Getenv("MONGODB_URI") == "" {
		logger.Warn("MONGODB_URI not set, transcripts are kept in memory only")
		return storage.NewMemoryTranscriptRepository(), nil
	}

	client, err := adaptermongo.NewClient(logger)
	if err != nil {
		logger.Warn("MongoDB unavailable, transcripts are kept in memory only", zap.Error(err))
		return storage.NewMemoryTranscriptRepository(), nil
	}
	return adaptermongo.NewTranscriptRepository(client, logger), client
}
