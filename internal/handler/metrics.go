package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	registry *prometheus.Registry
	saved    prometheus.Counter
	markRead prometheus.Counter
	failures *prometheus.CounterVec
}

// newMetrics registers the backend collectors on a private registry so
// several handlers can live in one process
func newMetrics(connected func() int) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		saved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gigchat_messages_saved_total",
			Help: "Messages persisted through POST /messages.",
		}),
		markRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gigchat_messages_marked_read_total",
			Help: "Messages flipped to read through PUT /messages/mark-as-read.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gigchat_request_failures_total",
			Help: "Requests answered with an error, by route.",
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.saved,
		m.markRead,
		m.failures,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gigchat_connected_sockets",
			Help: "Open websocket connections.",
		}, func() float64 { return float64(connected()) }),
		collectors.NewGoCollector(),
	)
	return m
}
