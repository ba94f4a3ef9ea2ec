// Package bot implements the logging dialog: trigger phrases, per-mode
// evidence collection, finalization and replies.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aixgo-dev/nutrilog/pkg/dateparse"
	"github.com/aixgo-dev/nutrilog/pkg/estimator"
	metrics "github.com/aixgo-dev/nutrilog/pkg/observability"
	"github.com/aixgo-dev/nutrilog/pkg/records"
	"github.com/aixgo-dev/nutrilog/pkg/session"
	"github.com/sirupsen/logrus"
)

// DefaultAckDelay coalesces bursts of image uploads into one reply.
const DefaultAckDelay = 800 * time.Millisecond

// EventKind is the kind of an inbound chat message.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventImage
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventImage:
		return "image"
	default:
		return "unknown"
	}
}

// Event is one inbound message from a user.
type Event struct {
	Kind       EventKind
	UserID     string
	ReplyToken string
	// Text is set for text messages.
	Text string
	// MessageID references the media of image messages.
	MessageID string
	Timestamp time.Time
}

// Messenger is the messaging transport.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, userID, text string) error
	DisplayName(ctx context.Context, userID string) (string, error)
	Content(ctx context.Context, messageID string) ([]byte, error)
}

var triggers = map[string]session.Mode{
	"分析熱量": session.ModeFood,
	"開始記錄": session.ModeFood,
	"運動記錄": session.ModeExercise,
	"運動紀錄": session.ModeExercise,
}

var cancelKeywords = map[string]bool{
	"取消": true,
	"結束": true,
}

// triggerMode reports the mode started by text, which must already be
// trimmed.
func triggerMode(text string) (session.Mode, bool) {
	mode, ok := triggers[text]
	return mode, ok
}

func isCancel(text string) bool {
	return cancelKeywords[text]
}

// modeHandler handles the events of one session mode. An event kind a
// mode does not support is dropped by its handler.
type modeHandler interface {
	greeting() string
	handleText(ctx context.Context, ev Event, sess session.Session)
	handleImage(ctx context.Context, ev Event, sess session.Session)
}

// Config wires a Bot.
type Config struct {
	Sessions    *session.Manager
	Messenger   Messenger
	Estimator   estimator.Estimator
	Store       records.Store
	Collections records.Collections
	Dates       *dateparse.Parser
	// AckDelay is the image acknowledgment debounce (default 800ms).
	AckDelay time.Duration
	Logger   logrus.FieldLogger
}

// Bot routes events to the handler of the user's current session.
type Bot struct {
	sessions  *session.Manager
	debounce  *session.Debouncer
	messenger Messenger
	estimator estimator.Estimator
	store     records.Store
	colls     records.Collections
	dates     *dateparse.Parser
	ackDelay  time.Duration
	log       logrus.FieldLogger

	handlers map[session.Mode]modeHandler
}

// New creates a Bot. Sessions, Messenger, Estimator and Store are
// required.
func New(cfg Config) (*Bot, error) {
	if cfg.Sessions == nil || cfg.Messenger == nil || cfg.Estimator == nil || cfg.Store == nil {
		return nil, fmt.Errorf("bot: sessions, messenger, estimator and store are required")
	}

	b := &Bot{
		sessions:  cfg.Sessions,
		debounce:  session.NewDebouncer(),
		messenger: cfg.Messenger,
		estimator: cfg.Estimator,
		store:     cfg.Store,
		colls:     cfg.Collections,
		dates:     cfg.Dates,
		ackDelay:  cfg.AckDelay,
		log:       cfg.Logger,
	}
	if b.dates == nil {
		b.dates = dateparse.New()
	}
	if b.ackDelay <= 0 {
		b.ackDelay = DefaultAckDelay
	}
	if b.log == nil {
		b.log = logrus.StandardLogger()
	}

	b.handlers = map[session.Mode]modeHandler{
		session.ModeFood:     &foodHandler{bot: b},
		session.ModeExercise: &exerciseHandler{bot: b},
	}
	for _, mode := range session.Modes {
		if _, ok := b.handlers[mode]; !ok {
			return nil, fmt.Errorf("bot: no handler for mode %s", mode)
		}
	}
	return b, nil
}

// Handle processes one event. Events for the same user must not be
// handled concurrently; Dispatcher guarantees that.
func (b *Bot) Handle(ctx context.Context, ev Event) {
	log := b.log.WithFields(logrus.Fields{"user_id": ev.UserID, "kind": ev.Kind.String()})

	if ev.Kind == EventText {
		if mode, ok := triggerMode(strings.TrimSpace(ev.Text)); ok {
			b.start(ctx, ev, mode)
			return
		}
	}

	sess, ok := b.sessions.Get(ev.UserID)
	if !ok {
		log.Debug("No active session, dropping event")
		return
	}

	h := b.handlers[sess.Mode]
	switch ev.Kind {
	case EventText:
		h.handleText(ctx, ev, sess)
	case EventImage:
		h.handleImage(ctx, ev, sess)
	default:
		log.Debug("Unsupported event kind, dropping")
	}
}

func (b *Bot) start(ctx context.Context, ev Event, mode session.Mode) {
	b.debounce.Cancel(ev.UserID)
	sess := b.sessions.Start(ev.UserID, mode)
	metrics.RecordSessionStarted(mode.String())

	b.log.WithFields(logrus.Fields{
		"user_id":    ev.UserID,
		"session_id": sess.ID,
		"mode":       mode.String(),
	}).Info("Session started")

	b.reply(ctx, ev, b.handlers[mode].greeting())
}

// end terminates the session instance and any pending acknowledgment.
func (b *Bot) end(sess session.Session, reason session.EndReason) {
	b.debounce.Cancel(sess.UserID)
	b.sessions.EndInstance(sess.UserID, sess.ID, reason)
}

// Close stops pending acknowledgments.
func (b *Bot) Close() {
	b.debounce.Stop()
}

func (b *Bot) reply(ctx context.Context, ev Event, text string) {
	if err := b.messenger.Reply(ctx, ev.ReplyToken, text); err != nil {
		b.log.WithError(err).WithField("user_id", ev.UserID).Warn("Reply failed")
	}
}

func (b *Bot) push(ctx context.Context, userID, text string) {
	if err := b.messenger.Push(ctx, userID, text); err != nil {
		b.log.WithError(err).WithField("user_id", userID).Warn("Push failed")
	}
}

// displayName looks up the user's name, falling back to UnknownUser.
func (b *Bot) displayName(ctx context.Context, userID string) string {
	name, err := b.messenger.DisplayName(ctx, userID)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			b.log.WithError(err).WithField("user_id", userID).Info("Display name lookup failed")
		}
		return UnknownUser
	}
	return name
}
