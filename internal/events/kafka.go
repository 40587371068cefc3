package events

import (
	"context"
	"encoding/json"

	"github.com/fathima-sithara/classroom-chat/internal/kafka"
	"go.uber.org/zap"
)

// KafkaBus publishes every event on one topic keyed by the event topic.
// Each instance consumes with its own group so all of them see every event.
type KafkaBus struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	log      *zap.Logger
}

func NewKafkaBus(brokers []string, topic, groupID string, log *zap.Logger) *KafkaBus {
	return &KafkaBus{
		producer: kafka.NewProducer(brokers, topic),
		consumer: kafka.NewConsumer(brokers, topic, groupID, log),
		log:      log,
	}
}

func (b *KafkaBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.producer.Publish(ctx, ev.Topic, payload)
}

func (b *KafkaBus) Subscribe(ctx context.Context, h Handler) error {
	return b.consumer.Run(ctx, func(key string, value []byte) {
		var ev Event
		if err := json.Unmarshal(value, &ev); err != nil {
			b.log.Warn("bad event payload", zap.String("key", key), zap.Error(err))
			return
		}
		h(ev)
	})
}

func (b *KafkaBus) Close() error {
	perr := b.producer.Close()
	if err := b.consumer.Close(); err != nil {
		return err
	}
	return perr
}
