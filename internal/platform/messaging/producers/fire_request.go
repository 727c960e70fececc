package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/segmentio/kafka-go"
)

// FireRequestProducer enqueues template fire and due-check requests for the worker.
type FireRequestProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewFireRequestProducer ensures the request topic exists and opens a synchronous
// writer, so a request accepted by the backend is known to be on the topic.
func NewFireRequestProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*FireRequestProducer, error) {
	if cfg.FireRequestTopic == "" {
		return nil, fmt.Errorf("kafka fire request topic is not configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for fire request producer: %w", err)
	}
	defer conn.Close()

	if err := ensureTopic(conn, cfg.FireRequestTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure fire request topic %s exists: %w", cfg.FireRequestTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.FireRequestTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.MaxWait,
	}

	return &FireRequestProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.FireRequestTopic,
	}, nil
}

// Publish writes value as JSON under key.
func (p *FireRequestProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal fire request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish fire request",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published fire request",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

// PublishRequest validates req and publishes it keyed by ledger.
func (p *FireRequestProducer) PublishRequest(ctx context.Context, req *recurring.FireRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return p.Publish(ctx, req.Key(), req)
}

func (p *FireRequestProducer) Close() error {
	p.logger.Info("Closing fire request producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
