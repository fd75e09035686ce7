package notify

import (
	"context"
	"encoding/json"
	"time"

	"engagement-service/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaSink publishes stored notifications keyed by recipient, so one
// recipient's notifications stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka publish failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Enqueue(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.RecipientID.String()),
		Value: payload,
		Time:  n.CreatedAt,
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
