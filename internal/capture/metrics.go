package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "open_attempts_total",
		Help:      "Device open attempts, including automatic ones",
	}, []string{"device"})

	openFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "open_failures_total",
		Help:      "Failed device opens by reason",
	}, []string{"device", "reason"})

	sessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "session_failures_total",
		Help:      "Capture sessions ended by a fatal driver error",
	}, []string{"device", "reason"})

	framesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames dequeued and published by the capture loop",
	}, []string{"device"})

	dequeueRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "dequeue_retries_total",
		Help:      "Dequeue attempts answered with EAGAIN",
	}, []string{"device"})

	buffersMapped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "buffers_mapped_total",
		Help:      "Driver buffers mapped into process memory",
	}, []string{"device"})

	buffersUnmapped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "buffers_unmapped_total",
		Help:      "Driver buffers unmapped from process memory",
	}, []string{"device"})

	engineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "state",
		Help:      "Engine state (0 closed, 1 negotiating, 2 streaming, 3 error backoff)",
	}, []string{"device"})

	retriesLeft = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alohacap",
		Subsystem: "capture",
		Name:      "retries_left",
		Help:      "Automatic open attempts left before backing off",
	}, []string{"device"})
)

// Metrics bound to one device path.
type deviceMetrics struct {
	device string

	opens    prometheus.Counter
	frames   prometheus.Counter
	retries  prometheus.Counter
	mapped   prometheus.Counter
	unmapped prometheus.Counter
	state    prometheus.Gauge
	budget   prometheus.Gauge
}

func metricsFor(device string) *deviceMetrics {
	return &deviceMetrics{
		device:   device,
		opens:    openAttempts.WithLabelValues(device),
		frames:   framesCaptured.WithLabelValues(device),
		retries:  dequeueRetries.WithLabelValues(device),
		mapped:   buffersMapped.WithLabelValues(device),
		unmapped: buffersUnmapped.WithLabelValues(device),
		state:    engineState.WithLabelValues(device),
		budget:   retriesLeft.WithLabelValues(device),
	}
}

func (m *deviceMetrics) openFailed(err error) {
	openFailures.WithLabelValues(m.device, reason(err)).Inc()
}

func (m *deviceMetrics) sessionFailed(err error) {
	sessionFailures.WithLabelValues(m.device, reason(err)).Inc()
}
