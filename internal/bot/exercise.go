package bot

import (
	"context"
	"strings"

	"github.com/aixgo-dev/nutrilog/pkg/records"
	"github.com/aixgo-dev/nutrilog/pkg/session"
	"github.com/sirupsen/logrus"
)

// exerciseHandler logs the first text message as the workout.
type exerciseHandler struct {
	bot *Bot
}

func (h *exerciseHandler) greeting() string {
	return msgExerciseGreeting
}

// handleImage drops images; exercise mode only takes text.
func (h *exerciseHandler) handleImage(ctx context.Context, ev Event, sess session.Session) {
	h.bot.log.WithField("user_id", ev.UserID).Debug("Image in exercise mode, dropping")
}

func (h *exerciseHandler) handleText(ctx context.Context, ev Event, sess session.Session) {
	b := h.bot
	text := strings.TrimSpace(ev.Text)
	log := b.log.WithFields(logrus.Fields{"user_id": ev.UserID, "session_id": sess.ID})

	if isCancel(text) {
		b.end(sess, session.EndCancelled)
		b.reply(ctx, ev, msgExerciseCancelled)
		return
	}

	b.sessions.UpdateInstance(ev.UserID, sess.ID, func(s *session.Session) {
		s.Content = text
	})
	taken, ok := b.sessions.Take(ev.UserID, sess.ID)
	if !ok {
		log.Debug("Session ended before logging exercise")
		return
	}

	parsed := b.dates.Parse(taken.Content)
	desc := parsed.CleanedText
	if desc == "" {
		desc = taken.Content
	}

	coll, err := b.colls.For(records.KindExercise)
	if err != nil {
		log.WithError(err).Error("Exercise collection missing")
		b.reply(ctx, ev, msgGenericError)
		return
	}

	rec := records.Record{
		Name: desc,
		User: b.displayName(ctx, ev.UserID),
		Date: parsed.Date,
	}
	id, err := b.store.Create(ctx, coll, rec)
	if err != nil {
		log.WithError(err).Error("Saving exercise failed")
		b.reply(ctx, ev, msgGenericError)
		return
	}

	log.WithFields(logrus.Fields{"record_id": id, "date": dateOnly(rec.Date)}).Infof("[%s] 寫入成功", records.KindExercise)
	b.reply(ctx, ev, exerciseSummary(rec))
}
