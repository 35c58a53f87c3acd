package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = false

	// Diarization metrics
	DiarizationFrames     *prometheus.CounterVec
	DiarizationLatency    prometheus.Histogram
	SpeakerDecisions      *prometheus.CounterVec
	SpeakersCreated       prometheus.Counter
	SpeakerMerges         prometheus.Counter
	StreamSessionsActive  prometheus.Gauge
	StreamSessionDuration prometheus.Histogram
	StreamBytesReceived   prometheus.Counter

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge

	// Runtime metrics
	MemoryHeapInUse prometheus.Gauge
	Goroutines      prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		DiarizationFrames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diarizer_frames_total",
				Help: "Total number of audio blocks processed",
			},
			[]string{"voiced"},
		)

		DiarizationLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diarizer_processing_seconds",
				Help:    "Time taken to extract features and identify the speaker of one block",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // From 0.1ms to ~200ms
			},
		)

		SpeakerDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diarizer_speaker_decisions_total",
				Help: "Speaker identification outcomes for voiced blocks",
			},
			[]string{"decision"},
		)

		SpeakersCreated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "diarizer_speakers_created_total",
				Help: "Total number of speaker profiles created",
			},
		)

		SpeakerMerges = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "diarizer_speaker_merges_total",
				Help: "Total number of speaker merges",
			},
		)

		StreamSessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "diarizer_stream_sessions_active",
				Help: "Number of active streaming diarization sessions",
			},
		)

		StreamSessionDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diarizer_stream_session_duration_seconds",
				Help:    "Duration of streaming diarization sessions",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14), // From 1s to ~4.5h
			},
		)

		StreamBytesReceived = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "diarizer_stream_bytes_received_total",
				Help: "Total number of PCM bytes received over streaming sessions",
			},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diarizer_amqp_published_messages_total",
				Help: "Total number of speaker events published to AMQP",
			},
			[]string{"exchange", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "diarizer_amqp_connection_status",
				Help: "AMQP connection status (1 = connected, 0 = disconnected)",
			},
		)

		MemoryHeapInUse = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "diarizer_memory_heap_inuse_bytes",
				Help: "Heap memory in use",
			},
		)

		Goroutines = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "diarizer_goroutines",
				Help: "Number of running goroutines",
			},
		)

		registry.MustRegister(
			DiarizationFrames,
			DiarizationLatency,
			SpeakerDecisions,
			SpeakersCreated,
			SpeakerMerges,
			StreamSessionsActive,
			StreamSessionDuration,
			StreamBytesReceived,
			AMQPPublishedMessages,
			AMQPConnectionStatus,
			MemoryHeapInUse,
			Goroutines,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	if path != "" {
		defaultMetricsPath = path
	}
}

// MetricsPath returns the HTTP path of the metrics endpoint
func MetricsPath() string {
	return defaultMetricsPath
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled and initialized
func IsMetricsEnabled() bool {
	return metricsEnabled && registry != nil
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if !IsMetricsEnabled() {
		return
	}
	handler := promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
	mux.Handle(defaultMetricsPath, handler)
}

// StartMetrics initializes the metrics service and samples runtime metrics
// until ctx is done
func StartMetrics(ctx context.Context, logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")

	go updateRuntimeMetrics(ctx)
}

func updateRuntimeMetrics(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var m runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runtime.ReadMemStats(&m)
			MemoryHeapInUse.Set(float64(m.HeapInuse))
			Goroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// RecordDiarizationFrame counts one processed block
func RecordDiarizationFrame(voiced bool) {
	if !IsMetricsEnabled() {
		return
	}
	label := "false"
	if voiced {
		label = "true"
	}
	DiarizationFrames.WithLabelValues(label).Inc()
}

// ObserveDiarizationLatency records the processing time of one block
func ObserveDiarizationLatency(duration time.Duration) {
	if IsMetricsEnabled() {
		DiarizationLatency.Observe(duration.Seconds())
	}
}

// RecordSpeakerDecision counts an identification outcome
func RecordSpeakerDecision(decision string) {
	if IsMetricsEnabled() {
		SpeakerDecisions.WithLabelValues(decision).Inc()
	}
}

// RecordSpeakerCreated counts a new speaker profile
func RecordSpeakerCreated() {
	if IsMetricsEnabled() {
		SpeakersCreated.Inc()
	}
}

// RecordSpeakerMerge counts a speaker merge
func RecordSpeakerMerge() {
	if IsMetricsEnabled() {
		SpeakerMerges.Inc()
	}
}

// RecordStreamBytes counts PCM bytes received from a stream
func RecordStreamBytes(n int) {
	if IsMetricsEnabled() {
		StreamBytesReceived.Add(float64(n))
	}
}

// StartStreamSession returns a function that records the session duration when called
func StartStreamSession() func() {
	if !IsMetricsEnabled() {
		return func() {}
	}

	StreamSessionsActive.Inc()
	start := time.Now()
	return func() {
		StreamSessionsActive.Dec()
		StreamSessionDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(exchange, status string) {
	if IsMetricsEnabled() {
		AMQPPublishedMessages.WithLabelValues(exchange, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if !IsMetricsEnabled() {
		return
	}
	if connected {
		AMQPConnectionStatus.Set(1)
	} else {
		AMQPConnectionStatus.Set(0)
	}
}
