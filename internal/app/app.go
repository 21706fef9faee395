package app

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/ai-tutor/internal/ai"
	"github.com/suPer8Hu/ai-tutor/internal/chat"
	"github.com/suPer8Hu/ai-tutor/internal/config"
	"github.com/suPer8Hu/ai-tutor/internal/ingest"
	"github.com/suPer8Hu/ai-tutor/internal/store/redisstore"
	"github.com/suPer8Hu/ai-tutor/internal/tutor"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewChatService wires the turn pipeline shared by the server and the
// worker. The returned cleanup releases external connections.
func NewChatService(ctx context.Context, cfg config.Config, gdb *gorm.DB, logger *zap.Logger) (*chat.Service, func(), error) {
	cleanup := func() {}

	tools := ai.NewToolRegistry(
		ai.NewImageTool(ai.NewImageClient(cfg.ImageServiceURL, cfg.ImageServiceTimeout)),
	)
	client := ai.NewClient(ClientConfig(cfg), tools, logger)

	var locks chat.Locker
	switch cfg.TurnLocks {
	case "redis":
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(ctx); err != nil {
			_ = rds.Close()
			return nil, cleanup, fmt.Errorf("redis ping: %w", err)
		}
		locks = rds
		cleanup = func() { _ = rds.Close() }
	default:
		locks = chat.NewLocalLocker()
	}

	svc := chat.NewService(chat.Deps{
		Repo:      chat.NewRepo(gdb),
		Generator: client,
		Engine:    tutor.NewEngine(tutor.NewOutlineGenerator(client, logger), tutor.PatternTopicExtractor{}),
		Ingestor: ingest.NewIngestor(ingest.Limits{
			MaxUploadBytes: cfg.IngestMaxUploadBytes,
			MaxImageBytes:  cfg.IngestMaxImageBytes,
			MaxImageDim:    cfg.IngestMaxImageDimension,
			MaxImagePixels: cfg.IngestMaxImagePixels,
			MaxTextChars:   cfg.IngestMaxTextChars,
		}, logger),
		Locks:             locks,
		ContextWindowSize: cfg.ChatContextWindowSize,
		Logger:            logger,
	})
	return svc, cleanup, nil
}

func ClientConfig(cfg config.Config) ai.Config {
	return ai.Config{
		BaseURL:       cfg.GeminiBaseURL,
		APIKey:        cfg.GeminiAPIKey,
		Model:         cfg.GeminiModel,
		FallbackModel: cfg.GeminiFallbackModel,
		MaxAttempts:   cfg.GeminiMaxAttempts,
		BaseDelay:     cfg.GeminiRetryBaseDelay,
		Timeout:       cfg.GeminiTimeout,
	}
}
