package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors.
type Metrics struct {
	cycles               *prometheus.CounterVec
	cycleDuration        prometheus.Histogram
	rejections           *prometheus.CounterVec
	mints                *prometheus.CounterVec
	ticksSkipped         prometheus.Counter
	notificationsSent    prometheus.Counter
	notificationsDropped prometheus.Counter
	errors               prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = New()
		prometheus.MustRegister(metrics.collectors()...)
	})
	return metrics
}

// New builds unregistered collectors.
func New() *Metrics {
	return &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mintwatch_cycles_total",
			Help: "Total number of evaluation cycles by final status",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mintwatch_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mintwatch_rejections_total",
			Help: "Total number of rejected cycles by reason",
		}, []string{"reason"}),
		mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mintwatch_mints_total",
			Help: "Total number of dispatched mints by outcome",
		}, []string{"status"}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mintwatch_ticks_skipped_total",
			Help: "Total number of ticks dropped because a cycle was still running",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mintwatch_notifications_sent_total",
			Help: "Total number of cycle reports sent to sinks",
		}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mintwatch_notifications_dropped_total",
			Help: "Total number of cycle reports that failed to reach a sink",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mintwatch_errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.cycles,
		m.cycleDuration,
		m.rejections,
		m.mints,
		m.ticksSkipped,
		m.notificationsSent,
		m.notificationsDropped,
		m.errors,
	}
}

// Cycle records a finished cycle.
func (m *Metrics) Cycle(status string, d time.Duration) {
	if m != nil {
		m.cycles.WithLabelValues(status).Inc()
		m.cycleDuration.Observe(d.Seconds())
	}
}

// Rejected increments the rejection counter for reason.
func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.rejections.WithLabelValues(reason).Inc()
	}
}

// Minted increments the mint counter for status.
func (m *Metrics) Minted(status string) {
	if m != nil {
		m.mints.WithLabelValues(status).Inc()
	}
}

// TickSkipped increments the skipped tick counter.
func (m *Metrics) TickSkipped() {
	if m != nil {
		m.ticksSkipped.Inc()
	}
}

// NotificationsSent increments the sent notifications counter.
func (m *Metrics) NotificationsSent() {
	if m != nil {
		m.notificationsSent.Inc()
	}
}

// NotificationsDropped increments the dropped notifications counter.
func (m *Metrics) NotificationsDropped() {
	if m != nil {
		m.notificationsDropped.Inc()
	}
}

// Errors increments the errors counter.
func (m *Metrics) Errors() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
