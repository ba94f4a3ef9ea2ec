// Package records persists logged meals and workouts to a document store
// and supports the date-based queries the retention sweep needs.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors for record stores.
var (
	// ErrCollectionNotConfigured is returned when a record kind has no
	// collection identifier.
	ErrCollectionNotConfigured = errors.New("collection not configured")
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("record store is closed")
	// ErrUnknownBackend is returned by Open for an unknown backend name.
	ErrUnknownBackend = errors.New("unknown record store backend")
)

// Record is one persisted log entry. Exercise records only use Name,
// User and Date; the nutrition fields stay zero.
type Record struct {
	Name     string
	Calories float64
	Protein  float64
	Fat      float64
	Carbs    float64
	User     string
	Note     string
	// Date is the day the entry belongs to. Only the date part is
	// meaningful; callers store 12:00 local time.
	Date time.Time
}

// Page identifies a stored record found by a query.
type Page struct {
	ID         string
	Collection string
	Date       time.Time
}

// Store is the document-store collaborator.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create stores rec in collection and returns its ID.
	Create(ctx context.Context, collection string, rec Record) (string, error)

	// QueryBefore returns every non-archived record in collection whose
	// date is strictly before the given time.
	QueryBefore(ctx context.Context, collection string, before time.Time) ([]Page, error)

	// Archive marks a record archived. Archiving a record that no longer
	// exists is not an error.
	Archive(ctx context.Context, page Page) error

	// Close releases resources held by the store.
	Close() error
}

// Kind is the type of record being written.
type Kind int

const (
	// KindDiet is a meal with a nutrition estimate.
	KindDiet Kind = iota + 1
	// KindExercise is a workout description.
	KindExercise
)

// String returns the label used in logs.
func (k Kind) String() string {
	switch k {
	case KindDiet:
		return "飲食"
	case KindExercise:
		return "運動"
	default:
		return "unknown"
	}
}

// Collections maps record kinds to collection identifiers. Exercise is
// optional; an empty value disables exercise logging and its sweep.
type Collections struct {
	Diet     string
	Exercise string
}

// For returns the collection for kind, or ErrCollectionNotConfigured.
func (c Collections) For(kind Kind) (string, error) {
	var name string
	switch kind {
	case KindDiet:
		name = c.Diet
	case KindExercise:
		name = c.Exercise
	}
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrCollectionNotConfigured, kind)
	}
	return name, nil
}

// Pinger is implemented by stores that can probe their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping probes store when it supports it.
func Ping(ctx context.Context, store Store) error {
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
