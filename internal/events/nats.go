package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsBus publishes on subject prefix.topic.
type NatsBus struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

func NewNatsBus(url, prefix string, log *zap.Logger) (*NatsBus, error) {
	nc, err := nats.Connect(url, nats.Name("classroom-chat"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc, prefix: prefix, log: log}, nil
}

func (b *NatsBus) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.prefix+"."+ev.Topic, payload)
}

func (b *NatsBus) Subscribe(ctx context.Context, h Handler) error {
	sub, err := b.nc.Subscribe(b.prefix+".>", func(m *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.log.Warn("bad event payload", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		h(ev)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (b *NatsBus) Close() error {
	b.nc.Close()
	return nil
}
