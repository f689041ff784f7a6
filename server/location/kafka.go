package location

import (
	"context"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StartKafka consumes location updates from a topic until ctx ends. It is a
// no-op when Kafka is disabled.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, enricher *Enricher, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("Kafka location ingest disabled")
		return
	}
	logger.Info("Kafka location ingest enabled",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1e6,
	})

	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Kafka read error", zap.Error(err))
				continue
			}
			if err := HandleMessage(ctx, enricher, m.Key, m.Value, time.Now()); err != nil {
				logger.Warn("Dropped location message",
					zap.Int64("offset", m.Offset),
					zap.Error(err))
			}
		}
	}()
}

// HandleMessage applies one Kafka record. The message key names the source
// when the payload does not.
func HandleMessage(ctx context.Context, enricher *Enricher, key, value []byte, now time.Time) error {
	update, err := ParseUpdate(value)
	if err != nil {
		return err
	}
	fix := update.Fix(now)
	if fix.SourceID == "" && len(key) > 0 {
		fix.SourceID = string(key)
	}
	return enricher.Update(ctx, fix)
}
