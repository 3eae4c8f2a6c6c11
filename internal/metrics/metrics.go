// Package metrics implements Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PacketsTotal counts packets pulled off the channel by the kernel.
	PacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strix_packets_total",
		Help: "Total number of packets processed by the kernel",
	})

	// BytesTotal counts captured bytes processed by the kernel.
	BytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strix_bytes_total",
		Help: "Total captured bytes processed by the kernel",
	})

	// EventsTotal counts dispatched events by name.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strix_events_total",
		Help: "Total number of events dispatched to handlers",
	}, []string{"event"})

	// SessionsOpened counts TCP sessions created by the tracker.
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strix_tcp_sessions_opened_total",
		Help: "Total number of TCP sessions created",
	})

	// SessionsExpired counts TCP sessions reclaimed by TTL expiry.
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strix_tcp_sessions_expired_total",
		Help: "Total number of TCP sessions expired",
	})
)

// Serve exposes /metrics on addr. It blocks; run it in its own
// goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
