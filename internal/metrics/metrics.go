// Package metrics exposes attendance counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"classattend/internal/attendance"
)

// Attendance counts domain events. It implements attendance.Observer.
type Attendance struct {
	sessions      *prometheus.CounterVec
	records       *prometheus.CounterVec
	verifications *prometheus.CounterVec
	excuses       *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Attendance {
	m := &Attendance{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "session_transitions_total",
			Help:      "Session lifecycle transitions by resulting state.",
		}, []string{"state"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "records_written_total",
			Help:      "Attendance record writes by source and status.",
		}, []string{"source", "status"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "verifications_total",
			Help:      "Biometric verification decisions.",
		}, []string{"accepted"}),
		excuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "excuse_reviews_total",
			Help:      "Excuse reviews by decision.",
		}, []string{"decision"}),
	}
	reg.MustRegister(m.sessions, m.records, m.verifications, m.excuses)
	return m
}

func (m *Attendance) SessionTransition(state attendance.SessionState) {
	m.sessions.WithLabelValues(string(state)).Inc()
}

func (m *Attendance) RecordWritten(source attendance.Source, status attendance.Status) {
	m.records.WithLabelValues(string(source), string(status)).Inc()
}

func (m *Attendance) VerificationDecided(accepted bool) {
	m.verifications.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

func (m *Attendance) ExcuseReviewed(status attendance.ExcuseStatus) {
	m.excuses.WithLabelValues(string(status)).Inc()
}

var _ attendance.Observer = (*Attendance)(nil)
