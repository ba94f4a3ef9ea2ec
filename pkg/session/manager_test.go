package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type endRecorder struct {
	mu     sync.Mutex
	events []EndReason
	ids    []string
}

func (r *endRecorder) hook(s Session, reason EndReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, reason)
	r.ids = append(r.ids, s.ID)
}

func (r *endRecorder) reasons() []EndReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EndReason(nil), r.events...)
}

func TestManagerStartAndGet(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(WithClock(clock.Now))
	defer func() { _ = m.Close() }()

	sess := m.Start("user-1", ModeFood)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, ModeFood, sess.Mode)
	assert.Equal(t, clock.Now(), sess.CreatedAt)
	assert.Equal(t, clock.Now().Add(DefaultTTL), sess.ExpiresAt)

	got, ok := m.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)

	_, ok = m.Get("user-2")
	assert.False(t, ok)
}

func TestManagerStartReplacesPreviousSession(t *testing.T) {
	rec := &endRecorder{}
	m := NewManager(WithEndHook(rec.hook))
	defer func() { _ = m.Close() }()

	first := m.Start("user-1", ModeFood)
	_, ok := m.Update("user-1", func(s *Session) {
		s.Texts = append(s.Texts, "便當")
	})
	require.True(t, ok)

	second := m.Start("user-1", ModeExercise)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, m.Len())

	got, ok := m.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, ModeExercise, got.Mode)
	assert.Empty(t, got.Texts, "evidence must not carry over to the replacement")

	assert.Equal(t, []EndReason{EndReplaced}, rec.reasons())
}

func TestManagerTTLBoundWithoutTimer(t *testing.T) {
	clock := newFakeClock()
	rec := &endRecorder{}
	m := NewManager(WithClock(clock.Now), WithTTL(5*time.Minute), WithEndHook(rec.hook))
	defer func() { _ = m.Close() }()

	m.Start("user-1", ModeFood)

	clock.Advance(4*time.Minute + 59*time.Second)
	_, ok := m.Get("user-1")
	assert.True(t, ok)

	// Activity does not extend the lifetime.
	_, ok = m.Update("user-1", func(s *Session) { s.Texts = append(s.Texts, "x") })
	require.True(t, ok)

	clock.Advance(time.Second)
	_, ok = m.Get("user-1")
	assert.False(t, ok, "session must be absent at exactly T+TTL")

	_, ok = m.Update("user-1", func(s *Session) { s.Texts = append(s.Texts, "late") })
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, []EndReason{EndExpired}, rec.reasons())
}

func TestManagerTTLTimerEvicts(t *testing.T) {
	ended := make(chan EndReason, 1)
	m := NewManager(WithTTL(30*time.Millisecond), WithEndHook(func(_ Session, r EndReason) {
		ended <- r
	}))
	defer func() { _ = m.Close() }()

	m.Start("user-1", ModeExercise)

	select {
	case r := <-ended:
		assert.Equal(t, EndExpired, r)
	case <-time.After(time.Second):
		t.Fatal("TTL timer did not fire")
	}

	_, ok := m.Get("user-1")
	assert.False(t, ok)
}

func TestManagerStaleTimerLeavesReplacementAlone(t *testing.T) {
	m := NewManager(WithTTL(time.Hour))
	defer func() { _ = m.Close() }()

	first := m.Start("user-1", ModeFood)
	second := m.Start("user-1", ModeFood)

	// Simulate the first instance's timer firing late.
	m.expire("user-1", first.ID)

	got, ok := m.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestManagerUpdate(t *testing.T) {
	m := NewManager()
	defer func() { _ = m.Close() }()

	orig := m.Start("user-1", ModeFood)

	got, ok := m.Update("user-1", func(s *Session) {
		s.Images = append(s.Images, []byte("img-1"))
		s.Texts = append(s.Texts, "note-1")
		s.ID = "tampered"
		s.Mode = ModeExercise
	})
	require.True(t, ok)
	assert.Equal(t, orig.ID, got.ID, "identity is restored after the callback")
	assert.Equal(t, ModeFood, got.Mode)
	assert.Len(t, got.Images, 1)
	assert.Equal(t, []string{"note-1"}, got.Texts)

	// Mutating a snapshot does not leak into the manager.
	got.Texts[0] = "changed"
	got.Texts = append(got.Texts, "extra")
	again, _ := m.Get("user-1")
	assert.Equal(t, []string{"note-1"}, again.Texts)

	_, ok = m.Update("nobody", func(s *Session) { t.Fatal("callback must not run without a session") })
	assert.False(t, ok)
}

func TestManagerConcurrentUpdatesAreAtomic(t *testing.T) {
	m := NewManager()
	defer func() { _ = m.Close() }()
	m.Start("user-1", ModeFood)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Update("user-1", func(s *Session) {
				s.Images = append(s.Images, []byte{1})
			})
		}()
	}
	wg.Wait()

	got, ok := m.Get("user-1")
	require.True(t, ok)
	assert.Len(t, got.Images, n)
}

func TestManagerTake(t *testing.T) {
	rec := &endRecorder{}
	m := NewManager(WithEndHook(rec.hook))
	defer func() { _ = m.Close() }()

	sess := m.Start("user-1", ModeFood)
	m.Update("user-1", func(s *Session) { s.Texts = append(s.Texts, "牛肉麵") })

	_, ok := m.Take("user-1", "other-instance")
	assert.False(t, ok)

	taken, ok := m.Take("user-1", sess.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"牛肉麵"}, taken.Texts)

	_, ok = m.Get("user-1")
	assert.False(t, ok)

	_, ok = m.Take("user-1", sess.ID)
	assert.False(t, ok, "a session is consumed at most once")
	assert.Equal(t, []EndReason{EndFinalized}, rec.reasons())
}

func TestManagerEndIsIdempotent(t *testing.T) {
	rec := &endRecorder{}
	m := NewManager(WithEndHook(rec.hook))
	defer func() { _ = m.Close() }()

	m.Start("user-1", ModeExercise)
	assert.True(t, m.End("user-1", EndCancelled))
	assert.False(t, m.End("user-1", EndCancelled))
	assert.False(t, m.End("never-started", EndCancelled))

	assert.Equal(t, []EndReason{EndCancelled}, rec.reasons())
}

func TestManagerInstanceScopedOperations(t *testing.T) {
	m := NewManager()
	defer func() { _ = m.Close() }()

	first := m.Start("user-1", ModeFood)
	second := m.Start("user-1", ModeFood)

	_, ok := m.UpdateInstance("user-1", first.ID, func(s *Session) { s.Texts = append(s.Texts, "stale") })
	assert.False(t, ok, "a replaced instance cannot be mutated")
	assert.False(t, m.EndInstance("user-1", first.ID, EndAborted), "a replaced instance cannot be ended")

	got, ok := m.UpdateInstance("user-1", second.ID, func(s *Session) { s.Texts = append(s.Texts, "fresh") })
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, got.Texts)

	assert.True(t, m.EndInstance("user-1", second.ID, EndAborted))
	_, ok = m.Get("user-1")
	assert.False(t, ok)
}

func TestManagerClose(t *testing.T) {
	rec := &endRecorder{}
	m := NewManager(WithEndHook(rec.hook))

	m.Start("a", ModeFood)
	m.Start("b", ModeExercise)
	require.NoError(t, m.Close())

	assert.Equal(t, 0, m.Len())
	assert.ElementsMatch(t, []EndReason{EndClosed, EndClosed}, rec.reasons())

	m.Start("c", ModeFood)
	_, ok := m.Get("c")
	assert.False(t, ok, "closed manager does not track new sessions")
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode  Mode
		want  string
		valid bool
	}{
		{ModeFood, "food", true},
		{ModeExercise, "exercise", true},
		{Mode(0), "unknown", false},
		{Mode(42), "unknown", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mode.String())
		assert.Equal(t, tt.valid, tt.mode.Valid())
	}
}
