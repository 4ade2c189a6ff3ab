package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"coolgate/internal/config"
	"coolgate/internal/model"
)

// Publisher sends gate events to a kafka topic so external monitoring
// and indexing collaborators can consume them. Publishing is best
// effort; a broker failure never blocks or fails the guarded call.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) *Publisher {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka publisher disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("kafka publisher enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, ev model.GateEvent) {
	if p == nil || p.writer == nil {
		return
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Identity),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.logger != nil {
			p.logger.Warn("kafka publish error", "err", err, "type", ev.Type)
		}
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
