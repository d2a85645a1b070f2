package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChatTurns          *prometheus.CounterVec
	ChatLatency        prometheus.Histogram
	CompletionFailures *prometheus.CounterVec
	RetrievedTurns     prometheus.Histogram
	ContextChars       prometheus.Histogram
	ContextTrims       *prometheus.CounterVec
	MemoryWipes        prometheus.Counter
	Suggestions        *prometheus.CounterVec
	ActiveUsers        prometheus.Gauge
	WSMessages         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on a fresh registry, so several
// instances can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"status"}),
		ChatLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_ms",
			Help:      "End-to-end chat turn latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		CompletionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_failures_total",
			Help:      "Completion failures by provider and kind.",
		}, []string{"provider", "kind"}),
		RetrievedTurns: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_turns",
			Help:      "Long-term turns included in a composed context.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
		ContextChars: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_chars",
			Help:      "Characters of memory placed in a composed context.",
			Buckets:   prometheus.ExponentialBuckets(250, 2, 8),
		}),
		ContextTrims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_trims_total",
			Help:      "Budget trims by stage.",
		}, []string{"stage"}),
		MemoryWipes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_wipes_total",
			Help:      "Per-user memory wipes.",
		}),
		Suggestions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_requests_total",
			Help:      "Suggestion requests by outcome.",
		}, []string{"status"}),
		ActiveUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_users",
			Help:      "Users with committed conversation state.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveChat(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(status).Inc()
	m.ChatLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveCompletionFailure(provider, kind string) {
	if m == nil {
		return
	}
	m.CompletionFailures.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) ObserveContext(retrieved, chars int, trimStages []string) {
	if m == nil {
		return
	}
	m.RetrievedTurns.Observe(float64(retrieved))
	m.ContextChars.Observe(float64(chars))
	for _, stage := range trimStages {
		m.ContextTrims.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ObserveWipe() {
	if m == nil {
		return
	}
	m.MemoryWipes.Inc()
}

func (m *Metrics) ObserveSuggestions(status string) {
	if m == nil {
		return
	}
	m.Suggestions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActiveUsers(n int) {
	if m == nil {
		return
	}
	m.ActiveUsers.Set(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// Handler serves the instruments in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
