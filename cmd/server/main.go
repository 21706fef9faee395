package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/ai-tutor/internal/app"
	"github.com/suPer8Hu/ai-tutor/internal/chat"
	"github.com/suPer8Hu/ai-tutor/internal/config"
	"github.com/suPer8Hu/ai-tutor/internal/db"
	"github.com/suPer8Hu/ai-tutor/internal/httpapi"
	"github.com/suPer8Hu/ai-tutor/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-tutor/internal/logging"
	"github.com/suPer8Hu/ai-tutor/internal/store/rabbitmq"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		logger.Fatal("db open", zap.String("dsn", logging.SanitizeDSN(cfg.DBDSN)), zap.Error(err))
	}
	if err := db.Migrate(gdb, chat.Models()...); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	svc, cleanup, err := app.NewChatService(ctx, cfg, gdb, logger)
	if err != nil {
		logger.Fatal("chat service", zap.Error(err))
	}
	defer cleanup()

	var local *chat.LocalDispatcher
	switch cfg.TurnDispatch {
	case "rabbit":
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Fatal("rabbit publisher", zap.String("url", logging.SanitizeDSN(cfg.RabbitURL)), zap.Error(err))
		}
		defer pub.Close()
		svc.UseDispatcher(pub)
	default:
		local = chat.NewLocalDispatcher(svc.RunJob, logger)
		svc.UseDispatcher(local)
	}

	h := handlers.NewHandler(svc, cfg.IngestMaxUploadBytes, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("dispatch", cfg.TurnDispatch),
			zap.String("locks", cfg.TurnLocks),
			zap.String("model", cfg.GeminiModel))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	// acknowledged turns still finish and persist
	if local != nil {
		local.Wait()
	}
}
