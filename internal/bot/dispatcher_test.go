package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aixgo-dev/nutrilog/pkg/config"
	"github.com/aixgo-dev/nutrilog/pkg/logging"
	"github.com/aixgo-dev/nutrilog/pkg/security"
	"github.com/aixgo-dev/nutrilog/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler collects handled events per user.
type recordingHandler struct {
	mu      sync.Mutex
	handled map[string][]string
	delay   time.Duration
	panicOn string
	active  map[string]int
	overlap bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{handled: map[string][]string{}, active: map[string]int{}}
}

func (h *recordingHandler) Handle(ctx context.Context, ev Event) {
	h.mu.Lock()
	h.active[ev.UserID]++
	if h.active[ev.UserID] > 1 {
		h.overlap = true
	}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.active[ev.UserID]--
		h.handled[ev.UserID] = append(h.handled[ev.UserID], ev.Text)
		h.mu.Unlock()
	}()

	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	if ev.Text == h.panicOn {
		panic("boom")
	}
}

func (h *recordingHandler) events(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled[userID]...)
}

func textEvent(userID, text string) Event {
	return Event{Kind: EventText, UserID: userID, Text: text}
}

func TestDispatcherPreservesPerUserOrder(t *testing.T) {
	h := newRecordingHandler()
	h.delay = time.Millisecond
	d := NewDispatcher(h, WithDispatcherLogger(logging.Discard()))

	want := []string{"a", "b", "c", "d", "e"}
	for _, text := range want {
		require.True(t, d.Enqueue(textEvent("U1", text)))
		require.True(t, d.Enqueue(textEvent("U2", text)))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, want, h.events("U1"))
	assert.Equal(t, want, h.events("U2"))
	assert.False(t, h.overlap, "events of one user never run concurrently")
	assert.Zero(t, d.Pending())
}

func TestDispatcherRecoversPanics(t *testing.T) {
	h := newRecordingHandler()
	h.panicOn = "bad"
	d := NewDispatcher(h, WithDispatcherLogger(logging.Discard()))

	d.Enqueue(textEvent("U1", "bad"))
	d.Enqueue(textEvent("U1", "good"))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{"bad", "good"}, h.events("U1"))
}

func TestDispatcherRateLimit(t *testing.T) {
	h := newRecordingHandler()
	d := NewDispatcher(h,
		WithRateLimiter(security.NewRateLimiter(0.001, 2)),
		WithDispatcherLogger(logging.Discard()),
	)

	assert.True(t, d.Enqueue(textEvent("U1", "1")))
	assert.True(t, d.Enqueue(textEvent("U1", "2")))
	assert.False(t, d.Enqueue(textEvent("U1", "3")))
	assert.True(t, d.Enqueue(textEvent("U2", "1")), "limits are per user")

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"1", "2"}, h.events("U1"))
}

func TestDispatcherDefaultLimitKeepsPhotoBatch(t *testing.T) {
	h := newHarness(t)
	d := NewDispatcher(h.bot,
		WithRateLimiter(security.NewRateLimiter(config.DefaultEventsPerSecond, config.DefaultEventBurst)),
		WithDispatcherLogger(logging.Discard()),
	)

	require.True(t, d.Enqueue(Event{Kind: EventText, UserID: user, ReplyToken: "r0", Text: "分析熱量"}))
	const photos = 12
	for i := 0; i < photos; i++ {
		id := fmt.Sprintf("photo-%d", i)
		h.messenger.mu.Lock()
		h.messenger.media[id] = []byte{byte(i)}
		h.messenger.mu.Unlock()
		require.True(t, d.Enqueue(Event{Kind: EventImage, UserID: user, ReplyToken: fmt.Sprintf("r%d", i+1), MessageID: id}))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, h.current(t).Images, photos)
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(newRecordingHandler(), WithDispatcherLogger(logging.Discard()))
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Enqueue(textEvent("U1", "late")))
}

func TestDispatcherCloseTimeoutCancelsHandlers(t *testing.T) {
	started := make(chan struct{})
	var cancelled bool
	h := HandlerFunc(func(ctx context.Context, ev Event) {
		close(started)
		<-ctx.Done()
		cancelled = true
	})
	d := NewDispatcher(h, WithDispatcherLogger(logging.Discard()))
	d.Enqueue(textEvent("U1", "slow"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, cancelled)
}

func TestDispatcherEventTimeout(t *testing.T) {
	errs := make(chan error, 1)
	h := HandlerFunc(func(ctx context.Context, ev Event) {
		<-ctx.Done()
		errs <- ctx.Err()
	})
	d := NewDispatcher(h, WithEventTimeout(10*time.Millisecond), WithDispatcherLogger(logging.Discard()))
	d.Enqueue(textEvent("U1", "slow"))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("handler was not cancelled")
	}
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcherDrivesBot(t *testing.T) {
	h := newHarness(t)
	d := NewDispatcher(h.bot, WithDispatcherLogger(logging.Discard()))

	d.Enqueue(Event{Kind: EventText, UserID: user, ReplyToken: "r1", Text: "運動紀錄"})
	d.Enqueue(Event{Kind: EventText, UserID: user, ReplyToken: "r2", Text: "重訓 45 分鐘"})
	require.NoError(t, d.Close(context.Background()))

	recs := h.store.Records("exercise")
	require.Len(t, recs, 1)
	assert.Equal(t, "重訓 45 分鐘", recs[0].Name)
}

func TestSessionEndHookRecordsEnds(t *testing.T) {
	var (
		mu      sync.Mutex
		reasons []session.EndReason
	)
	hook := SessionEndHook(logging.Discard())
	m := session.NewManager(session.WithEndHook(func(s session.Session, r session.EndReason) {
		hook(s, r)
		mu.Lock()
		reasons = append(reasons, r)
		mu.Unlock()
	}))
	defer m.Close()

	m.Start("U1", session.ModeFood)
	m.Start("U1", session.ModeExercise)
	m.End("U1", session.EndCancelled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.EndReason{session.EndReplaced, session.EndCancelled}, reasons)
}
