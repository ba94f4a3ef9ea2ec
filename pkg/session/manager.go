package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a session lives after creation.
const DefaultTTL = 5 * time.Minute

// Manager owns every active session, keyed by user ID.
// Each operation is atomic with respect to the others.
// Manager is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	ttl   time.Duration
	now   func() time.Time
	onEnd func(Session, EndReason)
}

type entry struct {
	sess  Session
	timer *time.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the fixed session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock sets the clock used for CreatedAt and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithEndHook registers fn to be called once for every session that stops
// existing, with the reason. fn runs outside the manager's lock.
func WithEndHook(fn func(Session, EndReason)) Option {
	return func(m *Manager) {
		m.onEnd = fn
	}
}

// NewManager creates an empty session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		entries: make(map[string]*entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Start creates a new session for userID, discarding any previous one.
// The TTL runs from now and is never extended.
func (m *Manager) Start(userID string, mode Mode) Session {
	now := m.now()
	sess := Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Mode:      mode,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	old, hadOld := m.removeLocked(userID)
	if m.closed {
		m.mu.Unlock()
		m.notify(old, hadOld, EndReplaced)
		return sess.clone()
	}
	id := sess.ID
	m.entries[userID] = &entry{
		sess:  sess,
		timer: time.AfterFunc(m.ttl, func() { m.expire(userID, id) }),
	}
	m.mu.Unlock()

	m.notify(old, hadOld, EndReplaced)
	return sess.clone()
}

// Get returns the current session for userID. A session past its
// expiry is reported absent even if its timer has not fired yet.
func (m *Manager) Get(userID string) (Session, bool) {
	m.mu.Lock()
	e, expired := m.liveLocked(userID)
	if e == nil {
		m.mu.Unlock()
		m.notify(expired, expired.ID != "", EndExpired)
		return Session{}, false
	}
	sess := e.sess.clone()
	m.mu.Unlock()
	return sess, true
}

// Update applies fn to the live session for userID under the manager's
// lock and returns the resulting snapshot. It is a no-op returning false
// when no live session exists. fn may change only evidence fields and
// must not call back into the manager.
func (m *Manager) Update(userID string, fn func(*Session)) (Session, bool) {
	return m.UpdateInstance(userID, "", fn)
}

// UpdateInstance is Update restricted to the session instance id. An
// empty id matches any instance.
func (m *Manager) UpdateInstance(userID, id string, fn func(*Session)) (Session, bool) {
	m.mu.Lock()
	e, expired := m.liveLocked(userID)
	if e == nil || (id != "" && e.sess.ID != id) {
		m.mu.Unlock()
		m.notify(expired, expired.ID != "", EndExpired)
		return Session{}, false
	}

	working := e.sess.clone()
	fn(&working)
	working.ID = e.sess.ID
	working.UserID = e.sess.UserID
	working.Mode = e.sess.Mode
	working.CreatedAt = e.sess.CreatedAt
	working.ExpiresAt = e.sess.ExpiresAt
	e.sess = working

	sess := working.clone()
	m.mu.Unlock()
	return sess, true
}

// Take removes and returns the live session for userID if it is still the
// instance identified by id. An empty id matches any instance. The end
// reason recorded is EndFinalized.
func (m *Manager) Take(userID, id string) (Session, bool) {
	m.mu.Lock()
	e, expired := m.liveLocked(userID)
	if e == nil || (id != "" && e.sess.ID != id) {
		m.mu.Unlock()
		m.notify(expired, expired.ID != "", EndExpired)
		return Session{}, false
	}
	sess, _ := m.removeLocked(userID)
	m.mu.Unlock()

	m.notify(sess, true, EndFinalized)
	return sess.clone(), true
}

// End removes the session for userID. Ending a session that does not
// exist is a no-op; the return value reports whether one was removed.
func (m *Manager) End(userID string, reason EndReason) bool {
	return m.EndInstance(userID, "", reason)
}

// EndInstance is End restricted to the session instance id. An empty id
// matches any instance.
func (m *Manager) EndInstance(userID, id string, reason EndReason) bool {
	m.mu.Lock()
	if e, ok := m.entries[userID]; !ok || (id != "" && e.sess.ID != id) {
		m.mu.Unlock()
		return false
	}
	sess, ok := m.removeLocked(userID)
	m.mu.Unlock()

	m.notify(sess, ok, reason)
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, e := range m.entries {
		if now.Before(e.sess.ExpiresAt) {
			n++
		}
	}
	return n
}

// Close stops every TTL timer and drops all sessions. Sessions started
// after Close are returned to the caller but not tracked.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	dropped := make([]Session, 0, len(m.entries))
	for userID := range m.entries {
		sess, _ := m.removeLocked(userID)
		dropped = append(dropped, sess)
	}
	m.mu.Unlock()

	for _, sess := range dropped {
		m.notify(sess, true, EndClosed)
	}
	return nil
}

// expire is the TTL callback. It only removes the instance it was armed
// for; a replacement session for the same user is left alone.
func (m *Manager) expire(userID, id string) {
	m.mu.Lock()
	e, ok := m.entries[userID]
	if !ok || e.sess.ID != id {
		m.mu.Unlock()
		return
	}
	sess, _ := m.removeLocked(userID)
	m.mu.Unlock()

	m.notify(sess, true, EndExpired)
}

// liveLocked returns the entry for userID if it has not expired. An entry
// found past its expiry is evicted and returned as the second value.
func (m *Manager) liveLocked(userID string) (*entry, Session) {
	e, ok := m.entries[userID]
	if !ok {
		return nil, Session{}
	}
	if !m.now().Before(e.sess.ExpiresAt) {
		sess, _ := m.removeLocked(userID)
		return nil, sess
	}
	return e, Session{}
}

func (m *Manager) removeLocked(userID string) (Session, bool) {
	e, ok := m.entries[userID]
	if !ok {
		return Session{}, false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(m.entries, userID)
	return e.sess, true
}

func (m *Manager) notify(sess Session, ok bool, reason EndReason) {
	if ok && m.onEnd != nil {
		m.onEnd(sess, reason)
	}
}
