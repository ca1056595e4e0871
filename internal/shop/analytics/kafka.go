package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/frerescollection/shopbot/internal/agent/model"
	kafkaGo "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// KafkaSink publishes events as JSON keyed by sender id.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

func (k *KafkaSink) Record(ctx context.Context, event model.AnalyticsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(event.SenderID),
		Value: payload,
		Time:  event.Timestamp,
	}); err != nil {
		return fmt.Errorf("kafka write %s: %w", event.Type, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

var _ model.AnalyticsSink = (*KafkaSink)(nil)
