// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package gate

import "github.com/prometheus/client_golang/prometheus"

// Route classes.
const (
	ClassAPI  = "api"
	ClassPage = "page"
)

// Gate outcomes for metrics and spans.
const (
	OutcomeForwarded       = "forwarded"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeRedirected      = "redirected"
	OutcomeForbidden       = "forbidden"
	OutcomeRateLimited     = "rate_limited"
	OutcomeError           = "error"
)

// Decisions counts gate outcomes by route class.
// Use RegisterMetrics to register this with a Prometheus registry.
var Decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dazno_gate_decisions_total",
		Help: "Total access gate decisions by route class and outcome",
	},
	[]string{"route_class", "outcome"},
)

// RegisterMetrics registers gate metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Decisions)
}

func recordDecision(class, outcome string) {
	Decisions.WithLabelValues(class, outcome).Inc()
}
