// Package estimator turns food photos and notes into a nutrition estimate
// using a generative-AI backend.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Common errors returned by estimators.
var (
	// ErrMalformedResponse is returned when the model output is not a JSON
	// object or array of the expected shape.
	ErrMalformedResponse = errors.New("malformed estimator response")
	// ErrNoEvidence is returned when neither images nor notes were given.
	ErrNoEvidence = errors.New("no images or notes to estimate")
	// ErrUnknownProvider is returned by New for an unregistered provider.
	ErrUnknownProvider = errors.New("unknown estimator provider")
)

// Result is a merged nutrition estimate for one meal.
type Result struct {
	Name      string  `json:"name"`
	Calories  float64 `json:"calories"`
	Protein   float64 `json:"protein"`
	Fat       float64 `json:"fat"`
	Carbs     float64 `json:"carbs"`
	Reasoning string  `json:"reasoning"`
}

// Estimator produces a nutrition estimate from evidence.
// Implementations make a single call with no retries.
type Estimator interface {
	// Estimate sends images (JPEG bytes) and cleaned notes to the model.
	Estimate(ctx context.Context, images [][]byte, notes []string) (*Result, error)

	// Name returns the backend name.
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	// Provider is the registered backend name ("gemini", "openai", "mock").
	Provider string
	// APIKey authenticates against the backend.
	APIKey string
	// Model overrides the backend's default model.
	Model string
	// BaseURL overrides the backend endpoint (tests, proxies).
	BaseURL string
	// Timeout bounds one estimate call. Zero means the caller's context
	// deadline only.
	Timeout time.Duration
}

// Factory builds an Estimator from config.
type Factory func(ctx context.Context, cfg Config) (Estimator, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend available to New under name.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Providers returns the registered backend names in sorted order.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the estimator named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Estimator, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, cfg.Provider, strings.Join(Providers(), ", "))
	}
	return f(ctx, cfg)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
