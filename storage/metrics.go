package storage

import "github.com/prometheus/client_golang/prometheus"

// engineMetrics holds the engine's self-instrumentation. All metrics are
// registered on the caller-supplied registerer; the engine never touches the
// global default registry.
type engineMetrics struct {
	samplesAppended prometheus.Counter
	blocksSealed    prometheus.Counter
	blocksPersisted prometheus.Counter
	activeSeries    prometheus.Gauge
	readDuration    prometheus.Histogram
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	m := &engineMetrics{
		samplesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tachyon_samples_appended_total",
			Help: "Total number of samples appended to head blocks.",
		}),
		blocksSealed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tachyon_blocks_sealed_total",
			Help: "Total number of head blocks sealed.",
		}),
		blocksPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tachyon_blocks_persisted_total",
			Help: "Total number of sealed blocks handed to the persistence sink.",
		}),
		activeSeries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tachyon_active_series",
			Help: "Number of series in the registry.",
		}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tachyon_read_duration_seconds",
			Help:    "Latency of storage read operations.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.samplesAppended,
			m.blocksSealed,
			m.blocksPersisted,
			m.activeSeries,
			m.readDuration,
		)
	}

	return m
}
