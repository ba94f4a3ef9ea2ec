// Package session tracks in-progress logging dialogs.
// A session exists only while a user is mid-dialog; it lives in process
// memory and expires a fixed time after creation.
package session

import (
	"time"
)

// Mode is the kind of data a session collects.
type Mode int

const (
	// ModeFood collects food photos and notes for a nutrition estimate.
	ModeFood Mode = iota + 1
	// ModeExercise collects a single exercise description.
	ModeExercise
)

// Modes lists every valid mode.
var Modes = []Mode{ModeFood, ModeExercise}

// String returns the mode name used in logs and metrics.
func (m Mode) String() string {
	switch m {
	case ModeFood:
		return "food"
	case ModeExercise:
		return "exercise"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m == ModeFood || m == ModeExercise
}

// EndReason records why a session stopped existing.
type EndReason string

const (
	// EndFinalized means the collected evidence was consumed by finalization.
	EndFinalized EndReason = "finalized"
	// EndCancelled means the user cancelled the dialog.
	EndCancelled EndReason = "cancelled"
	// EndExpired means the TTL elapsed.
	EndExpired EndReason = "expired"
	// EndReplaced means a new trigger started a fresh session.
	EndReplaced EndReason = "replaced"
	// EndAborted means the dialog was ended after a collaborator failure.
	EndAborted EndReason = "aborted"
	// EndClosed means the manager shut down.
	EndClosed EndReason = "closed"
)

// Session is a snapshot of one user's dialog state.
// The slices of a snapshot are copies, so appending to or reordering them
// does not affect the manager. Image bytes are shared and must be treated
// as read-only.
type Session struct {
	// ID identifies this session instance. A replacement session for the
	// same user gets a new ID.
	ID     string
	UserID string
	Mode   Mode

	// Images holds uploaded photos in upload order (Food mode).
	Images [][]byte
	// Texts holds free-text notes in arrival order (Food mode).
	Texts []string
	// Content is the accumulating description (Exercise mode).
	Content string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Empty reports whether no evidence has been collected.
func (s Session) Empty() bool {
	return len(s.Images) == 0 && len(s.Texts) == 0 && s.Content == ""
}

func (s Session) clone() Session {
	c := s
	if s.Images != nil {
		c.Images = append([][]byte(nil), s.Images...)
	}
	if s.Texts != nil {
		c.Texts = append([]string(nil), s.Texts...)
	}
	return c
}
