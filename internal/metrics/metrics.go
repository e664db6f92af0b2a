package metrics

import (
	"Go2NetGuard/internal/model"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports window outcomes to Prometheus. It is fed as a report
// writer, so it never runs on the packet path.
type Metrics struct {
	registry *prometheus.Registry

	packetRate *prometheus.GaugeVec
	byteRate   *prometheus.GaugeVec
	verdict    *prometheus.GaugeVec
	cooldown   *prometheus.GaugeVec
	packets    *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	attacks    *prometheus.CounterVec
	windows    prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		packetRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nsguard_category_packets_per_second",
			Help: "Packet rate of the last closed window by category",
		}, []string{"category"}),
		byteRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nsguard_category_bytes_per_second",
			Help: "Byte rate of the last closed window by category",
		}, []string{"category"}),
		verdict: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nsguard_category_dropped",
			Help: "1 while the category is being dropped, 0 while it passes",
		}, []string{"category"}),
		cooldown: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nsguard_category_cooldown_remaining_seconds",
			Help: "Quiet time still required before a dropped category passes again",
		}, []string{"category"}),
		packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nsguard_category_packets_total",
			Help: "Packets counted by category across closed windows",
		}, []string{"category"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nsguard_category_bytes_total",
			Help: "Bytes counted by category across closed windows",
		}, []string{"category"}),
		attacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nsguard_attacks_total",
			Help: "Number of times a category started being dropped",
		}, []string{"category"}),
		windows: f.NewCounter(prometheus.CounterOpts{
			Name: "nsguard_windows_total",
			Help: "Number of aggregation windows closed",
		}),
	}
}

func (m *Metrics) Name() string { return "metrics" }

// Write records one window report.
func (m *Metrics) Write(report *model.WindowReport) error {
	m.windows.Inc()
	for _, c := range report.Categories {
		name := c.Category.String()
		m.packetRate.WithLabelValues(name).Set(float64(c.PPS))
		m.byteRate.WithLabelValues(name).Set(float64(c.BPS))
		m.packets.WithLabelValues(name).Add(float64(c.Packets))
		m.bytes.WithLabelValues(name).Add(float64(c.Bytes))

		dropped := 0.0
		if c.Verdict == model.Drop {
			dropped = 1
		}
		m.verdict.WithLabelValues(name).Set(dropped)

		remaining := 0.0
		if c.Verdict == model.Drop {
			remaining = c.CooldownRemaining.Seconds()
		}
		m.cooldown.WithLabelValues(name).Set(remaining)

		if c.Transition == model.TransitionAttackStarted {
			m.attacks.WithLabelValues(name).Inc()
		}
	}
	return nil
}

// CounterFunc exports a monotonically increasing value read on scrape.
func (m *Metrics) CounterFunc(name, help string, fn func() float64) {
	promauto.With(m.registry).NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, fn)
}

// GaugeFunc exports a value read on scrape.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
