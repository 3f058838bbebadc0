package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relance"

// Metrics stores Prometheus collectors used by the API, the due scanner and the
// reminder worker.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDuration        *prometheus.HistogramVec
	callsClosedTotal           *prometheus.CounterVec
	unscheduledNonDefinitive   *prometheus.CounterVec
	orphanCallAttempts         prometheus.Gauge
	remindersPublishedTotal    *prometheus.CounterVec
	remindersSentTotal         *prometheus.CounterVec
	remindersFailedTotal       *prometheus.CounterVec
	remindersReleasedTotal     *prometheus.CounterVec
	dialDuration               *prometheus.HistogramVec
	workerInflight             *prometheus.GaugeVec
	dashboardCacheLookupsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		callsClosedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_closed_total",
				Help:      "Total number of call attempts closed, by whether the result ends the lead.",
			},
			[]string{"outcome"},
		),
		unscheduledNonDefinitive: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unscheduled_non_definitive_total",
				Help:      "Closed attempts with a non-definitive result and no follow-up scheduled.",
			},
			[]string{"project"},
		),
		orphanCallAttempts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "orphan_call_attempts",
				Help:      "Call attempts with neither next_call_at nor done_at at the last scan.",
			},
		),
		remindersPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_published_total",
				Help:      "Due follow-ups published to the reminder queue.",
			},
			[]string{"priority"},
		),
		remindersSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Due follow-ups handed to the dialer successfully.",
			},
			[]string{"priority"},
		),
		remindersFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_failed_total",
				Help:      "Due follow-ups the dialer rejected for good.",
			},
			[]string{"priority", "reason"},
		),
		remindersReleasedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_released_total",
				Help:      "Due follow-ups released for another scan after a transient dialer error.",
			},
			[]string{"priority"},
		),
		dialDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dial_duration_seconds",
				Help:      "Dialer webhook duration in seconds grouped by priority.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"priority"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_inflight",
				Help:      "Current number of in-flight reminder deliveries grouped by priority.",
			},
			[]string{"priority"},
		),
		dashboardCacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_cache_lookups_total",
				Help:      "Dashboard cache lookups by outcome (hit, miss, error).",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.callsClosedTotal,
		m.unscheduledNonDefinitive,
		m.orphanCallAttempts,
		m.remindersPublishedTotal,
		m.remindersSentTotal,
		m.remindersFailedTotal,
		m.remindersReleasedTotal,
		m.dialDuration,
		m.workerInflight,
		m.dashboardCacheLookupsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// IncCallClosed counts a closed attempt; definitive results end the lead.
func (m *Metrics) IncCallClosed(definitive bool) {
	if m == nil {
		return
	}
	outcome := "non_definitive"
	if definitive {
		outcome = "definitive"
	}
	m.callsClosedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncUnscheduledNonDefinitive(project string) {
	if m == nil {
		return
	}
	m.unscheduledNonDefinitive.WithLabelValues(normalizeLabel(project)).Inc()
}

func (m *Metrics) SetOrphanCallAttempts(count int64) {
	if m == nil {
		return
	}
	m.orphanCallAttempts.Set(float64(count))
}

func (m *Metrics) IncReminderPublished(priority string) {
	if m == nil {
		return
	}
	m.remindersPublishedTotal.WithLabelValues(normalizeLabel(priority)).Inc()
}

func (m *Metrics) IncReminderSent(priority string) {
	if m == nil {
		return
	}
	m.remindersSentTotal.WithLabelValues(normalizeLabel(priority)).Inc()
}

func (m *Metrics) IncReminderFailed(priority string, reason string) {
	if m == nil {
		return
	}
	m.remindersFailedTotal.WithLabelValues(normalizeLabel(priority), normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncReminderReleased(priority string) {
	if m == nil {
		return
	}
	m.remindersReleasedTotal.WithLabelValues(normalizeLabel(priority)).Inc()
}

func (m *Metrics) ObserveDialDuration(priority string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.dialDuration.WithLabelValues(normalizeLabel(priority)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(priority string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(priority)).Inc()
}

func (m *Metrics) DecWorkerInFlight(priority string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(priority)).Dec()
}

// ObserveDashboardCache records a cache lookup; err wins over hit.
func (m *Metrics) ObserveDashboardCache(hit bool, err error) {
	if m == nil {
		return
	}
	outcome := "miss"
	switch {
	case err != nil:
		outcome = "error"
	case hit:
		outcome = "hit"
	}
	m.dashboardCacheLookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
