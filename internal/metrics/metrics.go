// Package metrics exposes engine lifecycle events as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keeper"

// Metrics holds the keeper collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	checks       *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	generations  *prometheus.CounterVec
	generateTime *prometheus.HistogramVec
	turns        prometheus.Counter
	phases       *prometheus.CounterVec
}

// New creates the collectors on a private registry. Process and Go runtime
// collectors are registered alongside.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Resolved skill and sanity checks by kind and success tier.",
		}, []string{"kind", "tier"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_dropped_total",
			Help:      "Directives skipped during execution.",
		}, []string{"type", "reason"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generator round-trips by step and outcome.",
		}, []string{"step", "outcome"}),
		generateTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_seconds",
			Help:      "Generator round-trip latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"step"}),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_advances_total",
			Help:      "Combat turn advances.",
		}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Phase transitions by target phase.",
		}, []string{"to"}),
	}
	m.registry.MustRegister(
		m.checks, m.dropped, m.generations, m.generateTime, m.turns, m.phases,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks recording into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCheckResolved: func(_ context.Context, e *domain.CheckEvent) {
			m.checks.WithLabelValues(e.Kind, e.Tier).Inc()
		},
		OnDirectiveDropped: func(_ context.Context, e *domain.DirectiveEvent) {
			m.dropped.WithLabelValues(e.Kind, e.Reason).Inc()
		},
		OnTurnAdvanced: func(context.Context, *domain.TurnEvent) {
			m.turns.Inc()
		},
		OnPhaseChanged: func(_ context.Context, e *domain.PhaseEvent) {
			m.phases.WithLabelValues(e.To).Inc()
		},
		OnGenerate: func(_ context.Context, e *domain.GenerateEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.generations.WithLabelValues(e.Step, outcome).Inc()
			m.generateTime.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
		},
	}
}

// Combine fans each event out to every non-nil callback in hooks.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		h := h
		out.OnCheckResolved = chain(out.OnCheckResolved, h.OnCheckResolved)
		out.OnDirectiveDropped = chain(out.OnDirectiveDropped, h.OnDirectiveDropped)
		out.OnTurnAdvanced = chain(out.OnTurnAdvanced, h.OnTurnAdvanced)
		out.OnPhaseChanged = chain(out.OnPhaseChanged, h.OnPhaseChanged)
		out.OnGenerate = chain(out.OnGenerate, h.OnGenerate)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
