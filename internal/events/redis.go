package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus maps each topic onto the channel prefix+topic.
type RedisBus struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

func NewRedisBus(rdb *redis.Client, prefix string, log *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, prefix: prefix, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.prefix+ev.Topic, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	sub := b.rdb.PSubscribe(ctx, b.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("bad event payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if ev.Topic == "" {
				ev.Topic = strings.TrimPrefix(msg.Channel, b.prefix)
			}
			h(ev)
		}
	}
}

func (b *RedisBus) Close() error { return nil }
