// Package metrics holds the identity service's business counters.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics counts flow outcomes and throttled requests.
type Metrics struct {
	authEvents  *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_auth_events_total",
			Help: "Identity flow completions by flow and outcome.",
		}, []string{"flow", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_rate_limited_total",
			Help: "Requests rejected by the auth endpoint rate limiter.",
		}, []string{"scope"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.authEvents, m.rateLimited} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register identity metrics: %w", err)
			}
		}
	}
	return m, nil
}

// AuthEvent records one flow outcome. A nil receiver is a no-op.
func (m *Metrics) AuthEvent(flow, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(flow, outcome).Inc()
}

// RateLimited records one rejected request. A nil receiver is a no-op.
func (m *Metrics) RateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}
