package session

import (
	"sync"
	"time"
)

// Debouncer runs at most one pending callback per key. Scheduling a new
// callback for a key cancels the one already pending, so a burst of
// Schedule calls results in a single run after the last one.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	seq     uint64
	stopped bool
}

type pendingCall struct {
	timer *time.Timer
	seq   uint64
}

// NewDebouncer creates an idle Debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{
		pending: make(map[string]*pendingCall),
	}
}

// Schedule arms fn to run after delay for key, replacing any callback
// still pending for that key.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	seq := d.seq

	call := &pendingCall{seq: seq}
	call.timer = time.AfterFunc(delay, func() {
		// A timer that already fired can still lose the race against a
		// newer Schedule; the sequence check drops it in that case.
		d.mu.Lock()
		current, ok := d.pending[key]
		if !ok || current.seq != seq {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()

		fn()
	})
	d.pending[key] = call
}

// Cancel drops the pending callback for key, if any.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if call, ok := d.pending[key]; ok {
		call.timer.Stop()
		delete(d.pending, key)
	}
}

// armed reports whether a callback is pending for key.
func (d *Debouncer) armed(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending callback and rejects future ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, key)
	}
}
