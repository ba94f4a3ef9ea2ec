package line

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Line-Signature"

// ErrInvalidSignature is returned when a webhook body fails verification.
var ErrInvalidSignature = webhook.ErrInvalidSignature

// MessageKind is the kind of an inbound message.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
)

// Event is an inbound user message. Events other than text and image
// messages from a user are dropped by ParseEvents.
type Event struct {
	Kind       MessageKind
	UserID     string
	ReplyToken string
	MessageID  string
	Text       string
	Timestamp  time.Time
}

// VerifySignature checks signature against body.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	if !webhook.ValidateSignature(secret, signature, body) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseEvents decodes a webhook body, keeping text and image messages
// that carry a user id, in delivery order.
func ParseEvents(body []byte) ([]Event, error) {
	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	events := make([]Event, 0, len(cb.Events))
	for _, e := range cb.Events {
		msg, ok := e.(webhook.MessageEvent)
		if !ok {
			continue
		}
		userID := sourceUser(msg.Source)
		if userID == "" {
			continue
		}

		ev := Event{
			UserID:     userID,
			ReplyToken: msg.ReplyToken,
			Timestamp:  time.UnixMilli(msg.Timestamp),
		}
		switch content := msg.Message.(type) {
		case webhook.TextMessageContent:
			ev.Kind = MessageText
			ev.MessageID = content.Id
			ev.Text = content.Text
		case webhook.ImageMessageContent:
			ev.Kind = MessageImage
			ev.MessageID = content.Id
		default:
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// sourceUser returns the sending user. Group and room sources only carry
// it when the user has allowed it.
func sourceUser(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}
