package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teschmitt/kickir/internal/ports"
)

// PromObs exports kickir metrics to Prometheus and writes structured logs.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers every kickir metric on reg. A nil reg falls back to
// the default registerer and a nil logger to slog.Default.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		ports.MetricGoalsHome:           counter(ports.MetricGoalsHome, "Goals accepted for the home side."),
		ports.MetricGoalsAway:           counter(ports.MetricGoalsAway, "Goals accepted for the away side."),
		ports.MetricSensorErrors:        counter(ports.MetricSensorErrors, "Failed light-gate reads."),
		ports.MetricThresholdUpdates:    counter(ports.MetricThresholdUpdates, "Threshold changes applied."),
		ports.MetricThresholdRejected:   counter(ports.MetricThresholdRejected, "Malformed threshold writes ignored."),
		ports.MetricNotificationsSent:   counter(ports.MetricNotificationsSent, "Notifications delivered to a sink."),
		ports.MetricNotificationsFailed: counter(ports.MetricNotificationsFailed, "Notifications a sink failed to deliver."),
		ports.MetricQueueDropped:        counter(ports.MetricQueueDropped, "Goal events lost to queue overflow."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.GaugeQueueLength:   gauge(ports.GaugeQueueLength, "Goal events waiting for the notifier."),
		ports.GaugeThresholdHome: gauge(ports.GaugeThresholdHome, "Current home-side threshold."),
		ports.GaugeThresholdAway: gauge(ports.GaugeThresholdAway, "Current away-side threshold."),
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.LatencyNotify,
		Help:    "Time from goal detection to notification fan-out.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	collectors := []prometheus.Collector{latency}
	for _, c := range counters {
		collectors = append(collectors, c)
	}
	for _, g := range gauges {
		collectors = append(collectors, g)
	}
	reg.MustRegister(collectors...)

	return &PromObs{
		logger:   logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.LatencyNotify: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	a := attrs(fields)
	if err != nil {
		a = append(a, slog.Any("error", err))
	}
	p.logger.LogAttrs(context.Background(), slog.LevelError, msg, a...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	a := append(attrs(fields), slog.Bool("critical", true))
	if err != nil {
		a = append(a, slog.Any("error", err))
	}
	p.logger.LogAttrs(context.Background(), slog.LevelError, msg, a...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

// Logger exposes the underlying logger for components that log directly.
func (p *PromObs) Logger() *slog.Logger {
	return p.logger
}

func attrs(fields []ports.Field) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields)+2)
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
