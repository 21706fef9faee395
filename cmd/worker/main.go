package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/ai-tutor/internal/app"
	"github.com/suPer8Hu/ai-tutor/internal/chat"
	"github.com/suPer8Hu/ai-tutor/internal/config"
	"github.com/suPer8Hu/ai-tutor/internal/db"
	"github.com/suPer8Hu/ai-tutor/internal/logging"
	"github.com/suPer8Hu/ai-tutor/internal/store/rabbitmq"
	"go.uber.org/zap"
)

func workerConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("worker")

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", zap.String("url", logging.SanitizeDSN(cfg.RabbitURL)), zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal("queue declare", zap.Error(err))
	}

	//  strict concurrency control
	concurrency := workerConcurrency(cfg.WorkerConcurrency)

	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", zap.Error(err))
	}

	logger.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	// jobs run to completion even while shutting down
	jobCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(jobCtx, logger.With(zap.Int("worker", workerID)), svc, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, logger *zap.Logger, svc *chat.Service, d amqp.Delivery) {
	jobID, err := rabbitmq.DecodeJob(d.Body)
	if err != nil {
		logger.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := svc.RunJob(ctx, jobID); err != nil {
		// the job row already says failed; the message goes to the DLQ
		logger.Warn("turn job failed",
			zap.String("job_id", jobID),
			zap.Duration("cost", time.Since(start)),
			zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Warn("ack failed", zap.String("job_id", jobID), zap.Error(err))
	}
	if cost := time.Since(start); cost > 2*time.Second {
		logger.Info("job_timing", zap.String("job_id", jobID), zap.Duration("total", cost))
	}
}
