package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/spotbot/internal/config"
)

// Announcement is the payload published to the announcement topic.
type Announcement struct {
	ScopeID string    `json:"scope_id"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// KafkaNotifier publishes announcements for a chat gateway to deliver.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
	logger   *slog.Logger
}

// NewKafkaNotifier connects a synchronous producer to the brokers
func NewKafkaNotifier(cfg *config.KafkaConfig, logger *slog.Logger) (*KafkaNotifier, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = cfg.ProducerRetryMax
	saramaConfig.Producer.Retry.Backoff = cfg.ProducerRetryWait
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating announcement producer: %w", err)
	}
	return NewKafkaNotifierWithProducer(producer, cfg.AnnounceTopic, logger), nil
}

// NewKafkaNotifierWithProducer wraps an existing producer
func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		now:      time.Now,
		logger:   logger,
	}
}

// Announce implements Notifier. Messages are keyed by scope so one scope's
// announcements stay ordered.
func (n *KafkaNotifier) Announce(ctx context.Context, scopeID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Announcement{ScopeID: scopeID, Text: text, SentAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding announcement: %w", err)
	}

	partition, offset, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(scopeID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("publishing announcement: %w", err)
	}
	n.logger.Debug("announcement published",
		"scope_id", scopeID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close flushes and closes the producer
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
