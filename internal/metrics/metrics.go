package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages stored, by message type",
	}, []string{"type"})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_published_total",
		Help: "Fan-out events, by event type and result",
	}, []string{"event", "result"})

	Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_resolutions_total",
		Help: "Chat resolutions, by outcome",
	}, []string{"outcome"})

	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_active_connections",
		Help: "Active websocket connections",
	})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(MessagesSent, EventsPublished, Resolutions, Connections, RequestDuration)
	})
}
