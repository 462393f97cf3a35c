package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/summarysearch/summarysearch/pkg/config"
	"github.com/summarysearch/summarysearch/pkg/logger"
)

const (
	HeaderEventType   = "event-type"
	HeaderContentType = "content-type"
)

// Event is published as a JSON message. Key picks the partition, so events
// sharing a key stay ordered. Type travels in the event-type header.
type Event struct {
	Key   string
	Type  string
	Value any
}

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: logger.WithComponent("kafka-producer").With("topic", topic),
	}
}

// Publish writes one event and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := buildMessage(event, time.Now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event: %w", event.Type, err)
	}
	p.logger.Debug("event published", "type", event.Type, "key", event.Key, "value_size", len(msg.Value))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func buildMessage(event Event, at time.Time) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s event: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Time:  at,
		Headers: []kafka.Header{
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	}
	if event.Type != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderEventType, Value: []byte(event.Type)})
	}
	return msg, nil
}
