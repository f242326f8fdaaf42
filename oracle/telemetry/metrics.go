package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	metricsprom "github.com/armon/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const ServiceName = "feedkeeper"

// Metric keys emitted through go-metrics.
const (
	MetricKeyGatewayFailure  = "gateway_failure"
	MetricKeyFetchSuccess    = "fetch_success"
	MetricKeyFetchFailure    = "fetch_failure"
	MetricKeyUpdateSubmitted = "update_submitted"
	MetricKeyUpdateFailed    = "update_failed"
	MetricKeyUpdateSkipped   = "update_skipped"
	MetricKeyGasPriceSource  = "gas_price_source"
	MetricKeyBeaconAge       = "beacon_value_age_seconds"
)

var (
	initOnce sync.Once
	initErr  error

	// CycleDuration observes one update coordinator cycle.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ServiceName,
		Name:      "update_cycle_duration_seconds",
		Help:      "Duration of one update coordinator cycle",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"chain_id", "provider"})

	// FetchDuration observes one beacon fetch iteration.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ServiceName,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of one beacon fetch iteration",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"beacon_id"})
)

// InitMetrics installs the global go-metrics sink backed by the prometheus default registry.
func InitMetrics() error {
	initOnce.Do(func() {
		sink, err := metricsprom.NewPrometheusSink()
		if err != nil {
			initErr = fmt.Errorf("failed to create prometheus sink: %w", err)
			return
		}

		cfg := metrics.DefaultConfig(ServiceName)
		cfg.EnableHostname = false
		cfg.EnableRuntimeMetrics = true
		if _, err := metrics.NewGlobal(cfg, sink); err != nil {
			initErr = fmt.Errorf("failed to install metrics sink: %w", err)
		}
	})

	return initErr
}

func NewLabel(name, value string) metrics.Label {
	return metrics.Label{Name: name, Value: value}
}

func IncrCounter(key string, labels ...metrics.Label) {
	metrics.IncrCounterWithLabels([]string{key}, 1, labels)
}

func SetGauge(key string, val float32, labels ...metrics.Label) {
	metrics.SetGaugeWithLabels([]string{key}, val, labels)
}

func ObserveSince(h *prometheus.HistogramVec, start time.Time, labelValues ...string) {
	h.WithLabelValues(labelValues...).Observe(time.Since(start).Seconds())
}
