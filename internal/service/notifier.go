package service

import (
	"context"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/events"
	"github.com/fathima-sithara/classroom-chat/internal/metrics"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Notifier publishes lifecycle events. Publishing never fails the operation
// that triggered it; errors are logged and counted.
type Notifier struct {
	pub events.Publisher
	log *zap.Logger
}

func NewNotifier(pub events.Publisher, log *zap.Logger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

func (n *Notifier) Notify(ctx context.Context, ev events.Event) {
	if n == nil || n.pub == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.pub.Publish(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
		n.log.Warn("publish event",
			zap.String("type", string(ev.Type)),
			zap.String("topic", ev.Topic),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()
}
