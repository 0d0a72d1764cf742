package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamscribe_sessions_total",
		Help: "Total number of streaming sessions",
	}, []string{"outcome"}) // outcome: "completed" or "failed"

	sessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamscribe_session_state",
		Help: "Current session state (0=idle, 1=connecting, 2=streaming, 3=closing, 4=closed, 5=failed)",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamscribe_session_duration_seconds",
		Help:    "Duration of streaming sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Audio metrics
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamscribe_frames_sent_total",
		Help: "Total number of audio frames sent to the realtime API",
	})

	audioBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamscribe_audio_bytes_sent_total",
		Help: "Total PCM audio bytes sent to the realtime API",
	})

	// Event metrics
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamscribe_events_received_total",
		Help: "Total number of inbound events by decoded type",
	}, []string{"type"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamscribe_errors_total",
		Help: "Total number of errors",
	}, []string{"component"}) // component: "transport", "device", "handler", "decode"
)

// RecordFrameSent records one outbound audio frame
func RecordFrameSent(bytes int) {
	framesSent.Inc()
	audioBytesSent.Add(float64(bytes))
}

// RecordEventReceived records one decoded inbound event
func RecordEventReceived(eventType string) {
	eventsReceived.WithLabelValues(eventType).Inc()
}

// RecordError records an error attributed to a component
func RecordError(component string) {
	errorsTotal.WithLabelValues(component).Inc()
}

// SetSessionState exposes the coordinator state machine as a gauge
func SetSessionState(state int) {
	sessionState.Set(float64(state))
}

// RecordSessionEnd records the end of a session and its duration
func RecordSessionEnd(start time.Time, failed bool) {
	outcome := "completed"
	if failed {
		outcome = "failed"
	}
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionDuration.Observe(time.Since(start).Seconds())
}
