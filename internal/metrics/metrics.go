// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is what the engine reports to. Nop satisfies it for callers that
// do not scrape metrics.
type Recorder interface {
	ConflictsDetected(kind string, n int)
	ValidationDone(kind string, valid bool)
	AssignmentCommitted(kind string, forced bool)
	PlanProposed(affected int, noViable int)
}

type Nop struct{}

func (Nop) ConflictsDetected(string, int)    {}
func (Nop) ValidationDone(string, bool)      {}
func (Nop) AssignmentCommitted(string, bool) {}
func (Nop) PlanProposed(int, int)            {}

// Prometheus implements Recorder with counter vectors registered on reg.
type Prometheus struct {
	conflicts   *prometheus.CounterVec
	validations *prometheus.CounterVec
	assignments *prometheus.CounterVec
	plans       prometheus.Counter
	affected    prometheus.Counter
	noViable    prometheus.Counter
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus registers the collectors. A nil reg uses the default registerer;
// namespace defaults to "skylark".
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "skylark"
	}
	p := &Prometheus{
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Conflicts reported by fleet scans, by kind.",
		}, []string{"kind"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_validations_total",
			Help:      "Assignment validations, by resource kind and outcome.",
		}, []string{"resource", "outcome"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_committed_total",
			Help:      "Committed assignments, by resource kind and whether they were forced.",
		}, []string{"resource", "forced"}),
		plans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reassignment_plans_total",
			Help:      "Urgent reassignment plans proposed.",
		}),
		affected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reassignment_affected_missions_total",
			Help:      "Missions found affected by urgent reassignments.",
		}),
		noViable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reassignment_no_viable_total",
			Help:      "Replacement searches that found no viable candidate.",
		}),
	}
	for _, c := range []prometheus.Collector{p.conflicts, p.validations, p.assignments, p.plans, p.affected, p.noViable} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ConflictsDetected(kind string, n int) {
	p.conflicts.WithLabelValues(kind).Add(float64(n))
}

func (p *Prometheus) ValidationDone(kind string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	p.validations.WithLabelValues(kind, outcome).Inc()
}

func (p *Prometheus) AssignmentCommitted(kind string, forced bool) {
	f := "false"
	if forced {
		f = "true"
	}
	p.assignments.WithLabelValues(kind, f).Inc()
}

func (p *Prometheus) PlanProposed(affected int, noViable int) {
	p.plans.Inc()
	p.affected.Add(float64(affected))
	p.noViable.Add(float64(noViable))
}
