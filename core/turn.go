// Package core holds the value types shared by every memory layer.
//
// Types here are plain values: copying a Turn or cloning a PreferenceSet
// yields an independent value, so each layer owns its own copy and no layer
// can invalidate another by mutation.
package core

import (
	"fmt"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in a conversation. A Turn is immutable once written.
type Turn struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Sequence is the per-user commit order, starting at 1.
	Sequence int64 `json:"sequence_index"`

	// ConversationID groups turns for history listings.
	ConversationID string `json:"conversation_id,omitempty"`
}

// Ref returns the turn's stable reference within its user's namespace.
func (t Turn) Ref() TurnRef {
	return TurnRef{UserID: t.UserID, Sequence: t.Sequence}
}

// Label renders the role as it appears in prompts.
func (t Turn) Label() string {
	if t.Role == RoleAssistant {
		return "Assistant"
	}
	return "User"
}

// TurnRef points at a stored turn: (user_id, sequence_index).
type TurnRef struct {
	UserID   string `json:"user_id"`
	Sequence int64  `json:"sequence_index"`
}

func (r TurnRef) String() string {
	return fmt.Sprintf("%s#%d", r.UserID, r.Sequence)
}

// Exchange is one conversational turn as the short-term window sees it: a
// user message and the assistant reply that was shown for it. Both halves
// are committed together or not at all.
type Exchange struct {
	User      Turn `json:"user"`
	Assistant Turn `json:"assistant"`
}

// Turns returns the two halves in conversation order.
func (e Exchange) Turns() []Turn {
	return []Turn{e.User, e.Assistant}
}

// Size is the character count the exchange contributes to a prompt.
func (e Exchange) Size() int {
	return len(e.User.Text) + len(e.Assistant.Text)
}
