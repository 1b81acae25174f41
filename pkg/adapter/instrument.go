package adapter

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/metrics"
)

const tracerName = "github.com/zen-systems/mediagate/pkg/adapter"

// instrumentedAdapter records a span, metrics and a log line per call.
type instrumentedAdapter struct {
	Adapter
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// Instrument wraps a with tracing from the global otel provider and, when m
// is set, Prometheus metrics.
func Instrument(a Adapter, m *metrics.Collector, logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedAdapter{
		Adapter: a,
		metrics: m,
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
		logger:  logger,
	}
}

func (i *instrumentedAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	prov := string(i.Provider())
	model := i.Model()
	capability := string(i.Capability())

	ctx, span := i.tracer.Start(ctx, "mediagate.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mediagate.provider", prov),
			attribute.String("mediagate.model", model),
			attribute.String("mediagate.capability", capability),
			attribute.Int("mediagate.prompt_length", len(prompt)),
		),
	)
	defer span.End()

	start := time.Now()
	arts, err := i.Adapter.Generate(ctx, prompt, opts)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeSuccess
	var rejected *ContentRejectedError
	switch {
	case errors.As(err, &rejected):
		outcome = metrics.OutcomeRejected
	case err != nil:
		outcome = metrics.OutcomeError
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		i.logger.Warn("generate failed", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		span.SetAttributes(attribute.Int("mediagate.artifacts", len(arts)))
		span.SetStatus(codes.Ok, "")
		i.logger.Info("generate finished", zap.Int("artifacts", len(arts)), zap.Duration("elapsed", elapsed))
	}

	if i.metrics != nil {
		i.metrics.RecordGenerate(prov, model, capability, outcome, elapsed)
		for _, a := range arts {
			i.metrics.RecordArtifact(prov, string(a.Kind), a.Size())
			if credits, ok := a.Meta("credits"); ok {
				if c, ok := credits.(float64); ok {
					i.metrics.RecordCredits(prov, model, c)
				}
			}
		}
	}
	return arts, err
}

// Unwrap returns the decorated adapter.
func (i *instrumentedAdapter) Unwrap() Adapter { return i.Adapter }
