// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/authgate/authgate/internal/auth"
)

// Metrics holds the authgate counters. It implements auth.LoginRecorder.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	AccountLocks    prometheus.Counter
	UpdateConflicts prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AccountLocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_account_locks_total",
			Help: "Times an account lock was engaged",
		}),
		UpdateConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_lockout_update_conflicts_total",
			Help: "Conditional failure updates that lost a race and were retried",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.LoginAttempts, m.AccountLocks, m.UpdateConflicts, m.HTTPRequests)
	return m
}

// RecordLogin counts one decided login attempt.
func (m *Metrics) RecordLogin(outcome auth.Outcome, lockTriggered bool) {
	m.LoginAttempts.WithLabelValues(string(outcome)).Inc()
	if lockTriggered {
		m.AccountLocks.Inc()
	}
}

// RecordUpdateConflict counts a lost conditional update.
func (m *Metrics) RecordUpdateConflict() {
	m.UpdateConflicts.Inc()
}

// RecordHTTPRequest counts one API response. route is the matched route
// pattern, never the raw path.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

var _ auth.LoginRecorder = (*Metrics)(nil)
