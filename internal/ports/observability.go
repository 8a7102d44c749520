package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

type Field struct {
	Key   string
	Value any
}

// Metric names shared by the pipeline and its adapters.
const (
	MetricGoalsHome           = "kickir_goals_home_total"
	MetricGoalsAway           = "kickir_goals_away_total"
	MetricSensorErrors        = "kickir_sensor_errors_total"
	MetricThresholdUpdates    = "kickir_threshold_updates_total"
	MetricThresholdRejected   = "kickir_threshold_rejected_total"
	MetricNotificationsSent   = "kickir_notifications_sent_total"
	MetricNotificationsFailed = "kickir_notifications_failed_total"
	MetricQueueDropped        = "kickir_queue_dropped_total"

	GaugeQueueLength   = "kickir_queue_length"
	GaugeThresholdHome = "kickir_threshold_home"
	GaugeThresholdAway = "kickir_threshold_away"

	LatencyNotify = "kickir_notify_latency_seconds"
)
