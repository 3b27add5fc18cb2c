// README: Kafka producer used by the outbox worker to publish notification
// events. A console fallback keeps local development broker-free.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer interface {
	SendMessage(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

type writerProducer struct {
	writer *kafka.Writer
}

// NewProducer connects a kafka-go writer to the given brokers. Topic is set
// per message so one writer serves every outbox topic.
func NewProducer(brokers []string) Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &writerProducer{writer: w}
}

func (p *writerProducer) SendMessage(ctx context.Context, topic string, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

func (p *writerProducer) Close() error {
	return p.writer.Close()
}

// ConsoleProducer logs messages instead of publishing them. Used when no
// broker is configured.
type ConsoleProducer struct {
	log *zap.Logger
}

func NewConsoleProducer(log *zap.Logger) Producer {
	return &ConsoleProducer{log: log}
}

func (p *ConsoleProducer) SendMessage(_ context.Context, topic string, key, value []byte) error {
	p.log.Info("kafka message (console)",
		zap.String("topic", topic),
		zap.ByteString("key", key),
		zap.ByteString("value", value))
	return nil
}

func (p *ConsoleProducer) Close() error { return nil }

// NotificationHandler adapts a Producer to the outbox handler signature for
// a fixed topic. The task id key gives consumers a dedup handle.
func NotificationHandler(producer Producer, topic string) func(ctx context.Context, key string, payload json.RawMessage) error {
	return func(ctx context.Context, key string, payload json.RawMessage) error {
		return producer.SendMessage(ctx, topic, []byte(key), payload)
	}
}
