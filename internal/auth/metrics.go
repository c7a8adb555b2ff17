// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric outcome labels.
const (
	outcomeSuccess     = "success"
	outcomeInvalid     = "invalid_credentials"
	outcomeLocked      = "locked"
	outcomeDuplicate   = "duplicate"
	outcomeMismatch    = "identity_mismatch"
	outcomeError       = "error"
	outcomeInvalidForm = "invalid_request"
)

// Metrics holds Prometheus collectors for authentication outcomes.
// A nil *Metrics records nothing.
type Metrics struct {
	Logins         *prometheus.CounterVec
	Registrations  *prometheus.CounterVec
	PasswordResets *prometheus.CounterVec
	Lockouts       prometheus.Counter
	HashDuration   prometheus.Histogram
}

// NewMetrics creates and registers authentication metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_registrations_total",
				Help: "Total number of registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		PasswordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_password_resets_total",
				Help: "Total number of password reset attempts by outcome",
			},
			[]string{"outcome"},
		),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeep_lockouts_total",
			Help: "Total number of identities that reached the failed-login threshold",
		}),
		HashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeep_password_hash_duration_seconds",
			Help:    "Latency of password hash and verify operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	reg.MustRegister(m.Logins, m.Registrations, m.PasswordResets, m.Lockouts, m.HashDuration)

	return m
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) registration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) passwordReset(outcome string) {
	if m == nil {
		return
	}
	m.PasswordResets.WithLabelValues(outcome).Inc()
}

func (m *Metrics) lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Metrics) observeHash(d time.Duration) {
	if m == nil {
		return
	}
	m.HashDuration.Observe(d.Seconds())
}
