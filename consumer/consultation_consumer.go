package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"consultation-desk/models"
	"consultation-desk/store"
	"consultation-desk/utils"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	groupID           = "consultation-desk"
	defaultRetryDelay = 5 * time.Second
)

// ConsultationConsumer follows saved-consultation events: each saved record
// is indexed for search and open desk sessions are told to reload.
type ConsultationConsumer struct {
	index    utils.ConsultationIndex
	onSaved  func(ctx context.Context, rec models.Consultation)
	logger   *zap.Logger
	reader   *kafka.Reader
	shutdown chan struct{}

	retryDelay time.Duration
}

// NewConsultationConsumer builds a consumer. index and onSaved may each be
// nil.
func NewConsultationConsumer(broker, topic string, index utils.ConsultationIndex,
	onSaved func(ctx context.Context, rec models.Consultation), logger *zap.Logger) *ConsultationConsumer {
	return &ConsultationConsumer{
		index:   index,
		onSaved: onSaved,
		logger:  logger,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{broker},
			Topic:   topic,
			GroupID: groupID,
			MaxWait: 10 * time.Second,
		}),
		shutdown:   make(chan struct{}),
		retryDelay: defaultRetryDelay,
	}
}

func (c *ConsultationConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.reader.Config().Topic))

	go func() {
		for {
			select {
			case <-c.shutdown:
				return
			case <-ctx.Done():
				return
			default:
				c.processMessages(ctx)
			}
		}
	}()
}

func (c *ConsultationConsumer) Stop() {
	close(c.shutdown)
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("Error closing Kafka reader", zap.Error(err))
	}
}

func (c *ConsultationConsumer) processMessages(ctx context.Context) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return
		}
		c.logger.Warn("Kafka read error, will retry", zap.Error(err))
		c.backoff(ctx)
		return
	}
	c.handle(ctx, msg.Value)
}

// backoff waits before the next read attempt. It reports false when ctx or
// Stop ended the wait early.
func (c *ConsultationConsumer) backoff(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-c.shutdown:
		return false
	case <-t.C:
		return true
	}
}

func (c *ConsultationConsumer) handle(ctx context.Context, value []byte) {
	var event store.ConsultationEvent
	if err := json.Unmarshal(value, &event); err != nil {
		c.logger.Error("Failed to unmarshal Kafka message", zap.Error(err))
		return
	}

	switch event.Event {
	case store.EventConsultationSaved:
		c.handleConsultationSaved(ctx, event.Data)
	default:
		c.logger.Warn("Unknown event type", zap.String("event", event.Event))
	}
}

func (c *ConsultationConsumer) handleConsultationSaved(ctx context.Context, rec models.Consultation) {
	if rec.ID == "" {
		c.logger.Warn("Ignoring consultation_saved event without id")
		return
	}

	if c.index != nil {
		if err := c.index.IndexConsultation(ctx, &rec); err != nil {
			c.logger.Error("Failed to index consultation in Elasticsearch",
				zap.String("id", rec.ID),
				zap.Error(err),
			)
		}
	}

	if c.onSaved != nil {
		c.onSaved(ctx, rec)
	}

	c.logger.Debug("Processed consultation_saved event", zap.String("id", rec.ID))
}
