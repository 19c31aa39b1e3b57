// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values for login and privileged request results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// Metrics contains the Prometheus metrics of the panel.
//
// Metrics implements auth.SessionObserver and the panel and web recorder
// interfaces, so one value is wired into every component.
type Metrics struct {
	LoginsTotal             *prometheus.CounterVec
	SessionsActive          prometheus.Gauge
	SessionsRemovedTotal    *prometheus.CounterVec
	PrivilegedRequestsTotal *prometheus.CounterVec
	HTTPRequestsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers the panel metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arobito_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arobito_sessions_active",
				Help: "Number of live sessions",
			},
		),
		SessionsRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arobito_sessions_removed_total",
				Help: "Total number of removed sessions by reason",
			},
			[]string{"reason"},
		),
		PrivilegedRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arobito_privileged_requests_total",
				Help: "Total number of administrator-only requests by operation and result",
			},
			[]string{"operation", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arobito_http_requests_total",
				Help: "Total number of panel HTTP requests by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),
	}

	reg.MustRegister(
		m.LoginsTotal,
		m.SessionsActive,
		m.SessionsRemovedTotal,
		m.PrivilegedRequestsTotal,
		m.HTTPRequestsTotal,
	)
	return m
}

// SessionCreated implements auth.SessionObserver.
func (m *Metrics) SessionCreated() {
	m.SessionsActive.Inc()
}

// SessionRemoved implements auth.SessionObserver.
func (m *Metrics) SessionRemoved(reason string) {
	m.SessionsActive.Dec()
	m.SessionsRemovedTotal.WithLabelValues(reason).Inc()
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(success bool) {
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// RecordPrivileged counts an administrator-only request.
func (m *Metrics) RecordPrivileged(operation string, allowed bool) {
	result := ResultDenied
	if allowed {
		result = ResultSuccess
	}
	m.PrivilegedRequestsTotal.WithLabelValues(operation, result).Inc()
}

// RecordHTTPRequest counts a served panel request.
func (m *Metrics) RecordHTTPRequest(endpoint string, code int) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}
