package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful detections.
	OutcomeSuccess = "success"
	// OutcomeError labels failed detections (pipeline or dependency issues).
	OutcomeError = "error"
)

var (
	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr_anomaly",
			Name:      "detections_total",
			Help:      "Total number of detection runs handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	detectionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hr_anomaly",
			Name:      "detection_seconds",
			Help:      "End-to-end detection latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	inferenceDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hr_anomaly",
			Name:      "inference_seconds",
			Help:      "Reconstruction model call latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)

	windowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr_anomaly",
			Name:      "windows_total",
			Help:      "Full-length windows produced, partitioned by whether they passed the missing-data filter.",
		},
		[]string{"state"},
	)

	reportCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr_anomaly",
			Name:      "report_cache_total",
			Help:      "Stored-subject report cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)

	anomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hr_anomaly",
			Name:      "anomalies_total",
			Help:      "Total number of anomaly records emitted.",
		},
	)
)

// Register attaches hr-anomaly collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		detectionsTotal,
		detectionDurationSeconds,
		inferenceDurationSeconds,
		windowsTotal,
		anomaliesTotal,
		reportCacheTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDetection records a detection duration and outcome label.
func ObserveDetection(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	detectionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	detectionDurationSeconds.Observe(duration.Seconds())
}

// ObserveInference records a model call duration.
func ObserveInference(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	inferenceDurationSeconds.Observe(duration.Seconds())
}

// ObserveWindows counts kept and dropped windows of one run.
func ObserveWindows(kept, dropped int) {
	windowsTotal.WithLabelValues("kept").Add(float64(kept))
	windowsTotal.WithLabelValues("dropped").Add(float64(dropped))
}

// ObserveAnomalies counts emitted anomaly records.
func ObserveAnomalies(n int) {
	anomaliesTotal.Add(float64(n))
}

// ObserveCacheLookup counts a report cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		reportCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	reportCacheTotal.WithLabelValues("miss").Inc()
}
