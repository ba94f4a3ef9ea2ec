package records

import (
	"context"
	"time"

	"github.com/aixgo-dev/nutrilog/internal/observability"
	metrics "github.com/aixgo-dev/nutrilog/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Instrumented wraps a Store with trace spans and operation metrics.
type Instrumented struct {
	next Store
}

// NewInstrumented wraps next.
func NewInstrumented(next Store) *Instrumented {
	return &Instrumented{next: next}
}

func (s *Instrumented) observe(ctx context.Context, op, collection string, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "records."+op,
		attribute.String("records.collection", collection),
	)
	start := time.Now()
	err := fn(ctx)
	metrics.RecordStoreOperation(op, metrics.StatusLabel(err), time.Since(start))
	observability.EndSpan(span, err)
	return err
}

// Create implements Store.
func (s *Instrumented) Create(ctx context.Context, collection string, rec Record) (string, error) {
	var id string
	err := s.observe(ctx, "create", collection, func(ctx context.Context) error {
		var err error
		id, err = s.next.Create(ctx, collection, rec)
		return err
	})
	return id, err
}

// QueryBefore implements Store.
func (s *Instrumented) QueryBefore(ctx context.Context, collection string, before time.Time) ([]Page, error) {
	var pages []Page
	err := s.observe(ctx, "query_before", collection, func(ctx context.Context) error {
		var err error
		pages, err = s.next.QueryBefore(ctx, collection, before)
		return err
	})
	return pages, err
}

// Archive implements Store.
func (s *Instrumented) Archive(ctx context.Context, page Page) error {
	return s.observe(ctx, "archive", page.Collection, func(ctx context.Context) error {
		return s.next.Archive(ctx, page)
	})
}

// Close implements Store.
func (s *Instrumented) Close() error {
	return s.next.Close()
}

// Ping implements Pinger.
func (s *Instrumented) Ping(ctx context.Context) error {
	return Ping(ctx, s.next)
}
