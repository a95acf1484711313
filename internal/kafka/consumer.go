// Package kafka consumes inbound chat events from a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/spotbot/internal/config"
)

const (
	retryBackoffInitial = 500 * time.Millisecond
	retryBackoffMax     = 30 * time.Second
)

// EventHandler processes decoded inbound events
type EventHandler interface {
	Handle(ctx context.Context, ev InboundEvent) error
}

// Consumer consumes chat events from Kafka with at-least-once delivery
type Consumer struct {
	config        *config.KafkaConfig
	handler       EventHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler EventHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles messages one at a time. An offset is marked only
// once its event is applied or judged unprocessable, so a crash replays
// it; duplicate spots are absorbed by the ledger.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.process(session.Context(), message) {
				return nil
			}
			session.MarkMessage(message, "")
		}
	}
}

// process applies one message, retrying transient failures until the
// session ends. It reports false when the session ended first.
func (h *consumerGroupHandler) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	logger := h.consumer.logger

	ev, err := DecodeEvent(message.Value)
	if err != nil {
		logger.Warn("dropping malformed event",
			"error", err,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return true
	}

	timeout := h.consumer.config.HandleTimeout
	backoff := retryBackoffInitial
	for {
		handleCtx, cancel := context.WithTimeout(ctx, timeout)
		err := h.consumer.handler.Handle(handleCtx, ev)
		cancel()
		if err == nil {
			return true
		}

		logger.Error("failed to handle event, will retry",
			"error", err,
			"type", ev.Type,
			"event_key", ev.EventKey,
			"offset", message.Offset,
			"retry_in", backoff,
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, retryBackoffMax)
	}
}
