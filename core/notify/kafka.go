// Package notify publishes change notifications for successful mutations.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/logger"
)

// KafkaNotifier publishes one message per successful mutation. Publishing
// is synchronous and best effort; a broker failure is logged but never
// fails the request that triggered it.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier returns a notifier writing to topic on the given
// brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Notify publishes the mutated object keyed by entity, with the entity
// and operation as headers so consumers can route without parsing the
// payload.
func (n *KafkaNotifier) Notify(entityKey string, operation core.Operation, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entityKey),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "entity", Value: []byte(entityKey)},
			{Key: "operation", Value: []byte(string(operation))},
		},
	})
	if err != nil {
		logger.Default().WithError(err).Errorf("cannot notify %s %s", operation, entityKey)
	}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// ParseBrokers splits a comma separated broker list from the environment.
func ParseBrokers(value string) []string {
	var brokers []string
	for _, broker := range strings.Split(value, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
