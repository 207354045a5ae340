package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fuomag9/meshwatch/internal/models"
)

// Metrics exposes check results to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	checks   *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	up       *prometheus.GaugeVec
	ping     *prometheus.GaugeVec
}

// NewMetrics creates and registers the check metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshwatch_checks_total",
			Help: "Checks run, by monitor type and resulting status.",
		}, []string{"type", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshwatch_check_failures_total",
			Help: "Failed checks, by monitor type and failure kind.",
		}, []string{"type", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meshwatch_check_duration_seconds",
			Help:    "Time spent running a check.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshwatch_monitor_up",
			Help: "Monitor status (1 = up, 0 = down or pending).",
		}, []string{"monitor_id", "monitor_name", "monitor_type"}),
		ping: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshwatch_monitor_ping_ms",
			Help: "Latency reported by the last successful check, in milliseconds.",
		}, []string{"monitor_id", "monitor_name", "monitor_type"}),
	}
	reg.MustRegister(m.checks, m.failures, m.duration, m.up, m.ping)
	return m
}

func (m *Metrics) observe(monitor *models.Monitor, heartbeat *models.Heartbeat, checkErr error, took time.Duration) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(monitor.Type, models.StatusText(heartbeat.Status)).Inc()
	m.duration.WithLabelValues(monitor.Type).Observe(took.Seconds())

	labels := prometheus.Labels{
		"monitor_id":   strconv.Itoa(monitor.ID),
		"monitor_name": monitor.Name,
		"monitor_type": monitor.Type,
	}
	if checkErr != nil {
		m.failures.WithLabelValues(monitor.Type, KindOf(checkErr).String()).Inc()
		m.up.With(labels).Set(0)
		return
	}
	m.up.With(labels).Set(1)
	m.ping.With(labels).Set(float64(heartbeat.Ping))
}

func (m *Metrics) forget(monitor *models.Monitor) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"monitor_id":   strconv.Itoa(monitor.ID),
		"monitor_name": monitor.Name,
		"monitor_type": monitor.Type,
	}
	m.up.Delete(labels)
	m.ping.Delete(labels)
}
