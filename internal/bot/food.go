package bot

import (
	"context"
	"strings"
	"time"

	"github.com/aixgo-dev/nutrilog/pkg/records"
	"github.com/aixgo-dev/nutrilog/pkg/session"
	"github.com/sirupsen/logrus"
)

var finalizeKeywords = map[string]bool{
	"ok": true,
	"分析": true,
	"計算": true,
}

// pushTimeout bounds the delayed image acknowledgment.
const pushTimeout = 10 * time.Second

// foodHandler collects photos and notes, then estimates and stores one
// meal record.
type foodHandler struct {
	bot *Bot
}

func (h *foodHandler) greeting() string {
	return msgFoodGreeting
}

func (h *foodHandler) handleImage(ctx context.Context, ev Event, sess session.Session) {
	b := h.bot
	log := b.log.WithFields(logrus.Fields{"user_id": ev.UserID, "session_id": sess.ID})

	data, err := b.messenger.Content(ctx, ev.MessageID)
	if err != nil {
		log.WithError(err).Error("Image download failed")
		b.end(sess, session.EndAborted)
		b.reply(ctx, ev, msgImageFailed)
		return
	}

	updated, ok := b.sessions.UpdateInstance(ev.UserID, sess.ID, func(s *session.Session) {
		s.Images = append(s.Images, data)
	})
	if !ok {
		log.Debug("Session ended while downloading image")
		return
	}
	log.WithField("images", len(updated.Images)).Debug("Image added")

	b.debounce.Schedule(ev.UserID, b.ackDelay, func() {
		h.ack(ev.UserID, sess.ID)
	})
}

// ack reports the evidence counts as they are when the debounce fires.
func (h *foodHandler) ack(userID, sessionID string) {
	b := h.bot
	cur, ok := b.sessions.Get(userID)
	if !ok || cur.ID != sessionID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	b.push(ctx, userID, imageAck(len(cur.Images), len(cur.Texts)))
}

func (h *foodHandler) handleText(ctx context.Context, ev Event, sess session.Session) {
	b := h.bot
	text := strings.TrimSpace(ev.Text)

	switch {
	case finalizeKeywords[strings.ToLower(text)]:
		h.finalize(ctx, ev, sess)

	case isCancel(text):
		b.end(sess, session.EndCancelled)
		b.reply(ctx, ev, msgFoodCancelled)

	default:
		updated, ok := b.sessions.UpdateInstance(ev.UserID, sess.ID, func(s *session.Session) {
			s.Texts = append(s.Texts, text)
		})
		if !ok {
			return
		}
		b.reply(ctx, ev, textAck(len(updated.Images), len(updated.Texts)))
	}
}

// finalize consumes the session and logs the meal. An empty session is
// rejected and stays open.
func (h *foodHandler) finalize(ctx context.Context, ev Event, sess session.Session) {
	b := h.bot
	log := b.log.WithFields(logrus.Fields{"user_id": ev.UserID, "session_id": sess.ID})

	if len(sess.Images) == 0 && len(sess.Texts) == 0 {
		b.reply(ctx, ev, msgNoData)
		return
	}

	taken, ok := b.sessions.Take(ev.UserID, sess.ID)
	if !ok {
		log.Debug("Session ended before finalize")
		return
	}
	b.debounce.Cancel(ev.UserID)

	notes := b.dates.ResolveNotes(taken.Texts)
	log = log.WithFields(logrus.Fields{
		"images": len(taken.Images),
		"notes":  len(notes.Cleaned),
		"date":   dateOnly(notes.Date),
	})

	result, err := b.estimator.Estimate(ctx, taken.Images, notes.Cleaned)
	if err != nil {
		log.WithError(err).Error("Nutrition estimate failed")
		b.reply(ctx, ev, msgGenericError)
		return
	}

	coll, err := b.colls.For(records.KindDiet)
	if err != nil {
		log.WithError(err).Error("Diet collection missing")
		b.reply(ctx, ev, msgGenericError)
		return
	}

	name := result.Name
	if strings.TrimSpace(name) == "" {
		name = UnknownFood
	}
	rec := records.Record{
		Name:     name,
		Calories: result.Calories,
		Protein:  result.Protein,
		Fat:      result.Fat,
		Carbs:    result.Carbs,
		User:     b.displayName(ctx, ev.UserID),
		Note:     result.Reasoning,
		Date:     notes.Date,
	}

	id, err := b.store.Create(ctx, coll, rec)
	if err != nil {
		log.WithError(err).Error("Saving meal failed")
		b.reply(ctx, ev, msgGenericError)
		return
	}

	log.WithFields(logrus.Fields{"record_id": id, "calories": rec.Calories}).Infof("[%s] 寫入成功", records.KindDiet)
	b.reply(ctx, ev, foodSummary(rec))
}
