package events

import (
	"context"
	"sync"
)

// LocalBus delivers events in-process. It serves single instance setups and tests.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []Handler
	events   []Event
}

func NewLocalBus() *LocalBus { return &LocalBus{} }

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	b.events = append(b.events, ev)
	hs := append([]Handler(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
	<-ctx.Done()
	return nil
}

// Published returns every event published so far.
func (b *LocalBus) Published() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.events...)
}

func (b *LocalBus) Close() error { return nil }
