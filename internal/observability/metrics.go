package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_gateway_active_sessions",
		Help: "Number of active chat sessions",
	})

	totalSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_sessions_total",
		Help: "Total number of chat sessions by input mode",
	}, []string{"mode"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_gateway_session_duration_seconds",
		Help:    "Duration of chat sessions in seconds",
		Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600},
	})

	// Turn metrics
	turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_turns_total",
		Help: "Total number of dialogue turns",
	}, []string{"status"})

	turnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_gateway_turn_latency_seconds",
		Help:    "Dialogue turn round-trip latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Recognition metrics
	captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_recognition_captures_total",
		Help: "Total number of finalized speech captures",
	}, []string{"status"}) // status: "utterance" or "empty"

	repairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_punctuation_repairs_total",
		Help: "Total number of punctuation repair requests",
	}, []string{"status"})

	// Playback metrics
	playbackClips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_playback_clips_total",
		Help: "Total number of agent audio clips played",
	}, []string{"status"})

	// Appointment metrics
	appointmentSuggestions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_gateway_appointment_suggestions_total",
		Help: "Total number of appointment suggestions surfaced",
	})

	appointmentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_appointment_decisions_total",
		Help: "Total number of appointment banner decisions",
	}, []string{"action"}) // action: confirm, defer, export

	// Save flow metrics
	saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_saves_total",
		Help: "Total number of chat save attempts",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "session_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single chat session
type Metrics struct {
	sessionID     string
	startTime     time.Time
	turnStartTime time.Time
	mu            sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session in the given input mode
func (m *Metrics) RecordSessionStart(mode string) {
	activeSessions.Inc()
	totalSessions.WithLabelValues(mode).Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTurnStart records dispatch of a dialogue turn
func (m *Metrics) RecordTurnStart() {
	m.mu.Lock()
	m.turnStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTurnEnd records completion of a dialogue turn
func (m *Metrics) RecordTurnEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.turnStartTime.IsZero() {
		turnLatency.Observe(time.Since(m.turnStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	turns.WithLabelValues(status).Inc()
}

// RecordCapture records a finalized speech capture
func (m *Metrics) RecordCapture(empty bool) {
	status := "utterance"
	if empty {
		status = "empty"
	}
	captures.WithLabelValues(status).Inc()
}

// RecordRepair records a punctuation repair attempt
func (m *Metrics) RecordRepair(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	repairs.WithLabelValues(status).Inc()
}

// RecordPlayback records an agent audio clip playback attempt
func (m *Metrics) RecordPlayback(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	playbackClips.WithLabelValues(status).Inc()
}

// RecordSuggestion records an appointment suggestion shown to the user
func (m *Metrics) RecordSuggestion() {
	appointmentSuggestions.Inc()
}

// RecordAppointmentDecision records a banner decision (confirm, defer, export)
func (m *Metrics) RecordAppointmentDecision(action string) {
	appointmentDecisions.WithLabelValues(action).Inc()
}

// RecordSave records a chat save attempt
func (m *Metrics) RecordSave(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	saves.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
