package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/core"
)

// DefaultRetrieveK is the default number of records returned by Query.
const DefaultRetrieveK = 3

// Config holds LongTermMemory configuration.
type Config struct {
	// Enabled toggles semantic recall on/off. When disabled, Index is a
	// no-op and Query returns nothing.
	// Default: true.
	Enabled bool

	// Dimensions pins the embedding size. Zero adopts the embedder's
	// Dimensions(), or the size of the first successful embedding.
	Dimensions int
}

// DefaultConfig returns the defaults used when no Config is given.
var DefaultConfig = &Config{
	Enabled: true,
}

// LongTermMemory is the semantic index over committed turns.
// It embeds turns through an Embedder and keeps them in a Store namespaced
// by user ID. Failures of either collaborator degrade to empty results.
type LongTermMemory struct {
	store    Store
	embedder Embedder // internal: callers never see embeddings
	config   *Config

	mu   sync.Mutex
	dims int
}

// NewLongTermMemory creates a LongTermMemory.
func NewLongTermMemory(store Store, embedder Embedder, config *Config) *LongTermMemory {
	if config == nil {
		config = DefaultConfig
	}
	dims := config.Dimensions
	if dims <= 0 && embedder != nil {
		dims = embedder.Dimensions()
	}
	return &LongTermMemory{
		store:    store,
		embedder: embedder,
		config:   config,
		dims:     dims,
	}
}

// Enabled reports whether semantic recall is active.
func (m *LongTermMemory) Enabled() bool {
	return m.config.Enabled && m.store != nil && m.embedder != nil
}

// Index embeds turn and stores it in userID's namespace. It returns the
// embedding, or nil when recall is disabled or a collaborator failed.
func (m *LongTermMemory) Index(ctx context.Context, userID string, turn core.Turn) []float32 {
	if !m.Enabled() {
		return nil
	}
	if turn.UserID == "" {
		turn.UserID = userID
	}
	if turn.UserID != userID {
		log.Error().Str("component", "memory").
			Str("user_id", userID).Str("turn_user_id", turn.UserID).
			Msg("refusing to index turn into another user's namespace")
		return nil
	}

	embedding, err := m.embed(ctx, turn.Text)
	if err != nil {
		log.Warn().Str("component", "memory").Err(err).
			Str("user_id", userID).Int64("sequence", turn.Sequence).
			Msg("embedding unavailable, turn not indexed")
		return nil
	}

	rec := NewRecord(turn, embedding)
	if err := m.store.Store(ctx, rec); err != nil {
		log.Warn().Str("component", "memory").Err(err).
			Str("user_id", userID).Int64("sequence", turn.Sequence).
			Msg("failed to store record")
		return nil
	}

	log.Debug().Str("component", "memory").
		Str("user_id", userID).Int64("sequence", turn.Sequence).Str("role", string(turn.Role)).
		Msg("indexed turn")
	return embedding
}

// Query returns up to k records from userID's namespace most similar to
// text, highest similarity first, earlier turns first on ties.
func (m *LongTermMemory) Query(ctx context.Context, userID, text string, k int) []ScoredRecord {
	if !m.Enabled() || k <= 0 {
		return nil
	}

	embedding, err := m.embed(ctx, text)
	if err != nil {
		log.Warn().Str("component", "memory").Err(err).
			Str("user_id", userID).
			Msg("embedding unavailable, skipping recall")
		return nil
	}

	results, err := m.store.Query(ctx, userID, embedding, k)
	if err != nil {
		log.Warn().Str("component", "memory").Err(err).
			Str("user_id", userID).
			Msg("long-term query failed, skipping recall")
		return nil
	}

	// Namespace isolation is a hard guarantee: drop anything foreign even
	// if a backend misbehaves.
	out := results[:0]
	for _, r := range results {
		if r.Record == nil || r.Record.OwnerID() != userID {
			continue
		}
		out = append(out, r)
	}

	log.Debug().Str("component", "memory").
		Str("user_id", userID).Int("results", len(out)).Str("query", truncateLog(text, 50)).
		Msg("retrieved records")
	return out
}

// Count returns the number of records stored for userID, or 0 when the
// store cannot answer.
func (m *LongTermMemory) Count(ctx context.Context, userID string) int {
	if m.store == nil {
		return 0
	}
	n, err := m.store.Count(ctx, userID)
	if err != nil {
		log.Warn().Str("component", "memory").Err(err).Str("user_id", userID).Msg("count failed")
		return 0
	}
	return n
}

// MaxSequence returns the highest sequence the store holds for userID, or
// 0 when the store is absent or cannot answer.
func (m *LongTermMemory) MaxSequence(ctx context.Context, userID string) int64 {
	if m.store == nil {
		return 0
	}
	n, err := m.store.MaxSequence(ctx, userID)
	if err != nil {
		log.Warn().Str("component", "memory").Err(err).Str("user_id", userID).Msg("max sequence lookup failed")
		return 0
	}
	return n
}

// Clear removes every record for userID.
func (m *LongTermMemory) Clear(ctx context.Context, userID string) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("clear long-term memory: %w", err)
	}
	return nil
}

// embed calls the embedder and enforces the process-wide dimensionality.
func (m *LongTermMemory) embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embed: empty vector")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dims == 0 {
		m.dims = len(embedding)
	}
	if len(embedding) != m.dims {
		return nil, fmt.Errorf("embed: got %d dimensions, index uses %d", len(embedding), m.dims)
	}
	return embedding, nil
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
