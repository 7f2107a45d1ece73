package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	conversionTotal    *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	conversionInFlight prometheus.Gauge
	queueLag           prometheus.Histogram

	groupCreates      prometheus.Counter
	resolveCollapsed  prometheus.Counter
	itemsCommitted    *prometheus.CounterVec
	duplicatesSkipped prometheus.Counter
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	conversionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "conversions_total",
			Help:      "Total item conversions by status.",
		},
		[]string{"service", "status"},
	)
	conversionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "conversion_duration_seconds",
			Help:      "Item conversion duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	conversionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "conversions_in_flight",
			Help:      "Number of in-flight item conversions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between batch submission and conversion run start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	groupCreates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "group_creates_total",
			Help:      "Total group records created by the resolver.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	resolveCollapsed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "group_resolves_collapsed_total",
			Help:      "Total group resolutions collapsed into an in-flight call.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	itemsCommitted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "items_committed_total",
			Help:      "Total item records committed by mode.",
		},
		[]string{"service", "mode"},
	)
	duplicatesSkipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imageflow",
			Subsystem: "pipeline",
			Name:      "commit_duplicates_total",
			Help:      "Total commits skipped because the item already existed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		conversionTotal,
		conversionDuration,
		conversionInFlight,
		queueLag,
		groupCreates,
		resolveCollapsed,
		itemsCommitted,
		duplicatesSkipped,
	)

	return &PipelineMetrics{
		registry:           registry,
		conversionTotal:    conversionTotal,
		conversionDuration: conversionDuration,
		conversionInFlight: conversionInFlight,
		queueLag:           queueLag,
		groupCreates:       groupCreates,
		resolveCollapsed:   resolveCollapsed,
		itemsCommitted:     itemsCommitted,
		duplicatesSkipped:  duplicatesSkipped,
		service:            service,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ConversionStarted() {
	m.conversionInFlight.Inc()
}

func (m *PipelineMetrics) ConversionFinished(duration time.Duration, err error) {
	m.conversionInFlight.Dec()

	status := "done"
	if err != nil {
		status = "failed"
	}
	m.conversionTotal.WithLabelValues(m.service, status).Inc()
	m.conversionDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *PipelineMetrics) GroupCreated() {
	m.groupCreates.Inc()
}

func (m *PipelineMetrics) GroupResolveCollapsed() {
	m.resolveCollapsed.Inc()
}

func (m *PipelineMetrics) ItemCommitted(mode string) {
	m.itemsCommitted.WithLabelValues(m.service, mode).Inc()
}

func (m *PipelineMetrics) DuplicateSuppressed() {
	m.duplicatesSkipped.Inc()
}
