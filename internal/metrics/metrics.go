// Package metrics holds the prometheus collectors for outreachd.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	JobRuns        *prometheus.CounterVec
	Actions        *prometheus.CounterVec
	EventsSurfaced *prometheus.CounterVec
}

// New registers the outreachd collectors with reg, falling back to the
// default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outreachd",
				Name:      "job_runs_total",
				Help:      "Total discovery job runs by task and result",
			},
			[]string{"task", "result"},
		),
		Actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outreachd",
				Name:      "actions_total",
				Help:      "Total ledger action records by type and final status",
			},
			[]string{"action_type", "status"},
		),
		EventsSurfaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outreachd",
				Name:      "events_surfaced_total",
				Help:      "Total entities surfaced for the first time by entity type",
			},
			[]string{"entity_type"},
		),
	}

	reg.MustRegister(m.JobRuns, m.Actions, m.EventsSurfaced)
	return m
}
