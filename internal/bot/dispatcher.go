package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	metrics "github.com/aixgo-dev/nutrilog/pkg/observability"
	"github.com/aixgo-dev/nutrilog/pkg/security"
	"github.com/aixgo-dev/nutrilog/pkg/session"
	"github.com/sirupsen/logrus"
)

// DefaultEventTimeout bounds the handling of one event.
const DefaultEventTimeout = 60 * time.Second

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

// Dispatcher runs events off the request path. Events of one user are
// handled one at a time in arrival order; different users run in
// parallel. A panic in a handler is logged and does not affect other
// events.
type Dispatcher struct {
	handler Handler
	limiter *security.RateLimiter
	timeout time.Duration
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string][]Event
	closed bool
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRateLimiter drops events from users over their rate.
func WithRateLimiter(rl *security.RateLimiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = rl }
}

// WithEventTimeout bounds each event.
func WithEventTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(log logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher creates a dispatcher feeding handler.
func NewDispatcher(handler Handler, opts ...DispatcherOption) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler: handler,
		timeout: DefaultEventTimeout,
		log:     logrus.StandardLogger(),
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string][]Event),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue queues ev and returns immediately. It reports false when the
// event was rejected by the rate limiter or the dispatcher is closed.
func (d *Dispatcher) Enqueue(ev Event) bool {
	if d.limiter != nil && !d.limiter.Allow(ev.UserID) {
		metrics.RecordEvent(ev.Kind.String(), "limited")
		d.log.WithField("user_id", ev.UserID).Warn("Rate limit exceeded, dropping event")
		return false
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		metrics.RecordEvent(ev.Kind.String(), "dropped")
		return false
	}
	q, running := d.queues[ev.UserID]
	d.queues[ev.UserID] = append(q, ev)
	if !running {
		d.wg.Add(1)
		go d.drain(ev.UserID)
	}
	d.mu.Unlock()

	metrics.RecordEvent(ev.Kind.String(), "queued")
	return true
}

// drain handles the user's queue until it is empty.
func (d *Dispatcher) drain(userID string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if len(q) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		ev := q[0]
		d.queues[userID] = q[1:]
		d.mu.Unlock()

		d.process(ev)
	}
}

func (d *Dispatcher) process(ev Event) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{
				"user_id": ev.UserID,
				"panic":   fmt.Sprint(r),
				"stack":   string(debug.Stack()),
			}).Error("Event handler panicked")
		}
	}()

	d.handler.Handle(ctx, ev)
}

// Pending returns the number of queued events not yet started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, q := range d.queues {
		n += len(q)
	}
	return n
}

// Close stops accepting events and waits for queued ones to finish. When
// ctx ends first, in-flight handlers are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// SessionEndHook logs ended sessions and keeps the session metrics.
func SessionEndHook(log logrus.FieldLogger) func(session.Session, session.EndReason) {
	return func(s session.Session, reason session.EndReason) {
		metrics.RecordSessionEnded(s.Mode.String(), string(reason))
		log.WithFields(logrus.Fields{
			"user_id":    s.UserID,
			"session_id": s.ID,
			"mode":       s.Mode.String(),
			"reason":     string(reason),
		}).Info("Session ended")
	}
}
