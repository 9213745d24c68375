package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"imagedim/internal/dimension"
	"imagedim/internal/ingest"
	"imagedim/internal/models"
	"imagedim/internal/server"
	"imagedim/internal/storage"
)

func main() {
	cfg, err := models.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	db, err := storage.NewStorage(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to init storage", zap.Error(err))
	}
	defer db.Close()

	cache := dimension.NewRedisCache(cfg.RedisAddr)
	defer cache.Close()

	resolver := dimension.NewResolver(db, logger)
	bulk := dimension.NewBulkLookup(resolver, cache, cfg.BulkCacheTTL(), cfg.MaxBulkURLs, logger)
	tracker := ingest.NewTracker(resolver, cfg.StoragePath, cfg.DimensionsEnabled, logger)

	// Consume upload-created events in background. The subsystem toggle
	// gates the consumer itself: disabled means no per-event DB reads.
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.DimensionsEnabled {
		go consumeUploadEvents(ctx, cfg, db, tracker, logger)
	}

	srv := server.NewServer(cfg, db, bulk, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	srv.Stop()
}

func consumeUploadEvents(ctx context.Context, cfg *models.Config, db *storage.Storage, tracker *ingest.Tracker, logger *zap.Logger) {
	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{cfg.KafkaBroker},
		Topic:   cfg.KafkaTopic,
		GroupID: "image-dimension-group",
	})
	defer consumer.Close()

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			logger.Error("error reading message", zap.Error(err))
			continue
		}

		var event models.UploadCreatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("malformed upload event", zap.Error(err))
			continue
		}

		upload, err := db.UploadByID(ctx, event.UploadID)
		if err != nil {
			logger.Error("error loading upload",
				zap.Int64("upload_id", event.UploadID),
				zap.Error(err))
			continue
		}
		if upload == nil {
			logger.Warn("upload event for unknown upload",
				zap.String("event_id", event.EventID.String()),
				zap.Int64("upload_id", event.UploadID))
			continue
		}

		tracker.HandleUploadCreated(ctx, upload)
	}
}
