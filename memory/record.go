package memory

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/travel-memory/core"
)

// Record is a long-term memory entry: one committed turn plus the embedding
// of its text. There is exactly one record per indexed turn.
type Record struct {
	ID        string
	Turn      core.Turn
	Embedding []float32
}

// NewRecord creates a record for turn with a fresh ID.
func NewRecord(turn core.Turn, embedding []float32) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Turn:      turn,
		Embedding: embedding,
	}
}

// OwnerID returns the namespace the record belongs to.
func (r *Record) OwnerID() string {
	return r.Turn.UserID
}

// Text returns the stored turn text.
func (r *Record) Text() string {
	return r.Turn.Text
}

// Ref returns the (user_id, sequence_index) reference of the stored turn.
func (r *Record) Ref() core.TurnRef {
	return r.Turn.Ref()
}

// Metadata flattens the turn fields (all but the text) for stores that keep
// string metadata next to the content.
func (r *Record) Metadata() map[string]string {
	return map[string]string{
		"owner_id":        r.Turn.UserID,
		"role":            string(r.Turn.Role),
		"sequence":        strconv.FormatInt(r.Turn.Sequence, 10),
		"timestamp":       r.Turn.Timestamp.UTC().Format(time.RFC3339Nano),
		"conversation_id": r.Turn.ConversationID,
	}
}

// RecordFromStorage rebuilds a record from the stored content and metadata.
func RecordFromStorage(id, text string, metadata map[string]string, embedding []float32) (*Record, error) {
	seq, err := strconv.ParseInt(metadata["sequence"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse sequence: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, metadata["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	role := core.Role(metadata["role"])
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return &Record{
		ID: id,
		Turn: core.Turn{
			UserID:         metadata["owner_id"],
			Role:           role,
			Text:           text,
			Timestamp:      ts,
			Sequence:       seq,
			ConversationID: metadata["conversation_id"],
		},
		Embedding: embedding,
	}, nil
}

// ScoredRecord pairs a record with its similarity to a query.
type ScoredRecord struct {
	Record *Record
	Score  float64
}
