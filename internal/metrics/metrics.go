// Package metrics exposes Prometheus collectors for the scrape service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeTasksTotal          *prometheus.CounterVec
	scrapeResultItemsTotal    prometheus.Counter
	scrapeTaskDurationSeconds prometheus.Histogram
	scrapeActiveWorkers       prometheus.Gauge
	notifyMessagesSentTotal   *prometheus.CounterVec
	notifyMessagesRecvTotal   *prometheus.CounterVec
	notifyReconnectsTotal     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_tasks_total",
				Help: "Total number of processing attempts, labeled by resulting status.",
			},
			[]string{"status"},
		)

		scrapeResultItemsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrape_result_items_total",
				Help: "Total number of result items appended.",
			},
		)

		scrapeTaskDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrape_task_duration_seconds",
				Help:    "Histogram of end-to-end processing attempt latencies.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		)

		scrapeActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		notifyMessagesSentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_messages_sent_total",
				Help: "Total outbound notification messages, labeled by kind.",
			},
			[]string{"kind"},
		)

		notifyMessagesRecvTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_messages_received_total",
				Help: "Total inbound notification messages, labeled by kind.",
			},
			[]string{"kind"},
		)

		notifyReconnectsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_reconnects_total",
				Help: "Total reconnect attempts made by the notification channel.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask increments the task counter for the status a processing
// attempt ended in.
func ObserveTask(status string, duration time.Duration) {
	if scrapeTasksTotal == nil {
		return
	}
	scrapeTasksTotal.WithLabelValues(status).Inc()
	scrapeTaskDurationSeconds.Observe(duration.Seconds())
}

// ObserveResultItems adds appended result items to the counter.
func ObserveResultItems(n int) {
	if scrapeResultItemsTotal == nil || n <= 0 {
		return
	}
	scrapeResultItemsTotal.Add(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if scrapeActiveWorkers != nil {
		scrapeActiveWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if scrapeActiveWorkers != nil {
		scrapeActiveWorkers.Dec()
	}
}

// ObserveMessageSent increments the outbound message counter.
func ObserveMessageSent(kind string) {
	if notifyMessagesSentTotal != nil {
		notifyMessagesSentTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveMessageReceived increments the inbound message counter.
func ObserveMessageReceived(kind string) {
	if notifyMessagesRecvTotal != nil {
		notifyMessagesRecvTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveReconnectAttempt increments the reconnect counter.
func ObserveReconnectAttempt() {
	if notifyReconnectsTotal != nil {
		notifyReconnectsTotal.Inc()
	}
}
