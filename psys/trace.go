package psys

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts one span per recorder step. Callers use the returned
// context for the step's work and invoke the returned end function
// with the step's error (nil on success) when the step completes.
type Tracer interface {
	StartStep(ctx context.Context, runID string, step int) (context.Context, func(error))
}

// OTelTracer implements Tracer with OpenTelemetry spans, grounded on
// the same span-per-unit-of-work shape as psys/emit.OTelEmitter but
// scoped to whole steps rather than individual events, so a step's
// span can be used to parent any emitter spans started during it.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer returns an OTelTracer using tracer (e.g.
// otel.Tracer("psystem")).
func NewOTelTracer(tracer trace.Tracer) *OTelTracer {
	return &OTelTracer{tracer: tracer}
}

func (t *OTelTracer) StartStep(ctx context.Context, runID string, step int) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "psystem.step")
	span.SetAttributes(
		attribute.String("psystem.run_id", runID),
		attribute.Int("psystem.step", step),
	)
	return ctx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}
