package estimator

import (
	"context"
	"strings"
	"sync"
)

func init() {
	Register("mock", func(_ context.Context, _ Config) (Estimator, error) {
		return NewMock(), nil
	})
}

// Call records the arguments of one Estimate call.
type Call struct {
	Images [][]byte
	Notes  []string
}

// Mock is an Estimator for tests and offline use. It returns Responses
// (raw model output, parsed like a real backend) and Errors in call
// order, then falls back to a canned estimate.
type Mock struct {
	mu sync.Mutex

	Responses []string
	Errors    []error
	Calls     []Call

	index int
}

// NewMock creates a Mock with no queued responses.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns "mock".
func (m *Mock) Name() string {
	return "mock"
}

// Estimate implements Estimator.
func (m *Mock) Estimate(ctx context.Context, images [][]byte, notes []string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, Call{
		Images: append([][]byte(nil), images...),
		Notes:  append([]string(nil), notes...),
	})

	i := m.index
	m.index++

	if i < len(m.Errors) && m.Errors[i] != nil {
		return nil, m.Errors[i]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < len(m.Responses) {
		return Parse(m.Responses[i])
	}

	name := "測試餐點"
	if len(notes) > 0 {
		name = strings.Join(notes, "、")
	}
	return &Result{
		Name:      name,
		Calories:  float64(350 + 150*len(images)),
		Protein:   12.5,
		Fat:       10,
		Carbs:     45.3,
		Reasoning: "mock estimate",
	}, nil
}

// CallCount returns the number of Estimate calls so far.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
