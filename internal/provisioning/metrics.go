package provisioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the provisioning collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	transitionsTotal   *prometheus.CounterVec
	provisionsTotal    *prometheus.CounterVec
	provisionDuration  *prometheus.HistogramVec
	pollAttempts       *prometheus.HistogramVec
	terminationsTotal  *prometheus.CounterVec
	bestEffortFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ec2keeper",
				Subsystem: "provisioning",
				Name:      "state_transitions_total",
				Help:      "Total number of provisioning state transitions by target state",
			},
			[]string{"state"},
		),
		provisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ec2keeper",
				Subsystem: "provisioning",
				Name:      "provisions_total",
				Help:      "Total number of provisioning attempts by outcome and failure reason",
			},
			[]string{"outcome", "reason"},
		),
		provisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ec2keeper",
				Subsystem: "provisioning",
				Name:      "provision_duration_seconds",
				Help:      "Duration of provisioning attempts in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~17min
			},
			[]string{"outcome"},
		),
		pollAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ec2keeper",
				Subsystem: "provisioning",
				Name:      "poll_attempts",
				Help:      "Polling attempts used per wait phase",
				Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 45, 60},
			},
			[]string{"phase"},
		),
		terminationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ec2keeper",
				Subsystem: "provisioning",
				Name:      "terminations_total",
				Help:      "Total number of deployment terminations by result",
			},
			[]string{"result"},
		),
		bestEffortFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ec2keeper",
				Subsystem: "provisioning",
				Name:      "best_effort_failures_total",
				Help:      "Total number of failed best-effort side effects by operation",
			},
			[]string{"operation"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.transitionsTotal,
			m.provisionsTotal,
			m.provisionDuration,
			m.pollAttempts,
			m.terminationsTotal,
			m.bestEffortFailures,
		)
	}
	return m
}

func (m *Metrics) recordTransition(to State) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) recordProvision(outcome string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.provisionsTotal.WithLabelValues(outcome, errorReason(err)).Inc()
	m.provisionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) recordPollAttempts(phase State, attempts int) {
	if m == nil {
		return
	}
	m.pollAttempts.WithLabelValues(string(phase)).Observe(float64(attempts))
}

func (m *Metrics) recordTermination(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = errorReason(err)
	}
	m.terminationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordBestEffortFailure(operation string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(operation).Inc()
}
