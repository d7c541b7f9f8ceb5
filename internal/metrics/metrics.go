package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Gateway
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Currently admitted connections",
		},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_rejected_total",
			Help: "Connections rejected before admission",
		},
		[]string{"reason"},
	)

	// Dispatcher
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_delivered_total",
			Help: "Events enqueued to connection send queues",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Events dropped because a connection could not accept them",
		},
		[]string{"event", "reason"},
	)

	// Chat
	MessagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_created_total",
			Help: "Messages persisted",
		},
		[]string{"target"}, // "channel" or "conversation"
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"op"},
	)

	CollabEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_collab_events_total",
			Help: "Collaborator events processed",
		},
		[]string{"type", "source"},
	)
)

// RegisterGauges регистрирует gauge-функции для размеров in-memory таблиц.
// Повторная регистрация (например, в тестах) игнорируется.
func RegisterGauges(onlineUsers, rooms func() int) {
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "realtime_online_users",
		Help: "Users with at least one connection",
	}, func() float64 { return float64(onlineUsers()) }))

	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "realtime_rooms",
		Help: "Non-empty rooms",
	}, func() float64 { return float64(rooms()) }))
}

func register(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		panic(err)
	}
}
