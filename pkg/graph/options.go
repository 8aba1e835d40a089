package graph

import (
	"log/slog"

	"github.com/aretw0/triage/pkg/domain"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the tracer name used for graph spans.
const InstrumentationName = "github.com/aretw0/triage/pkg/graph"

type tracer = trace.Tracer
type logger = *slog.Logger

// Option configures a compiled Graph. Options passed to Run override them for that run.
type Option func(*Graph)

// WithMaxSteps bounds node invocations per run. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxSteps = n
		}
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(g *Graph) {
		g.hooks = hooks
	}
}

// WithTracer sets the tracer used for run and node spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Graph) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

func noopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(InstrumentationName)
}
