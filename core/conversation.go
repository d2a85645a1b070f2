package core

import "time"

// ConversationSummary is the history-listing view of a conversation. It is
// derived from committed turns and never stored on its own.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	MessageCount   int       `json:"message_count"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}
