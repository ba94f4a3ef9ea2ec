package estimator

import (
	"context"
	"time"

	"github.com/aixgo-dev/nutrilog/internal/observability"
	metrics "github.com/aixgo-dev/nutrilog/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Instrumented wraps an Estimator with a trace span and call metrics.
type Instrumented struct {
	next Estimator
}

// NewInstrumented wraps next.
func NewInstrumented(next Estimator) *Instrumented {
	return &Instrumented{next: next}
}

// Name returns the wrapped backend's name.
func (i *Instrumented) Name() string {
	return i.next.Name()
}

// Estimate implements Estimator.
func (i *Instrumented) Estimate(ctx context.Context, images [][]byte, notes []string) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "estimator.estimate",
		attribute.String("estimator.provider", i.next.Name()),
		attribute.Int("estimator.images", len(images)),
		attribute.Int("estimator.notes", len(notes)),
	)
	start := time.Now()

	res, err := i.next.Estimate(ctx, images, notes)

	metrics.RecordEstimatorCall(i.next.Name(), metrics.StatusLabel(err), time.Since(start))
	if err == nil {
		span.SetAttributes(
			attribute.String("estimator.food_name", res.Name),
			attribute.Float64("estimator.calories", res.Calories),
		)
	}
	observability.EndSpan(span, err)
	return res, err
}
