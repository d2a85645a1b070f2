package preference

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/core"
)

// Persister saves preference sets outside the process. Implementations:
// SQLitePersister, PostgresPersister.
type Persister interface {
	// Load returns userID's saved set; an unknown user yields an empty set.
	Load(ctx context.Context, userID string) (core.PreferenceSet, error)
	Save(ctx context.Context, userID string, prefs core.PreferenceSet) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

// Store holds each user's PreferenceSet. Reads return snapshots. With a
// Persister, a user's set is loaded on first access and written through on
// every change; persistence failures are logged and never fail the caller.
type Store struct {
	persister Persister

	mu     sync.Mutex
	sets   map[string]core.PreferenceSet
	loaded map[string]bool
}

// NewStore creates a store. persister may be nil for in-memory only.
func NewStore(persister Persister) *Store {
	return &Store{
		persister: persister,
		sets:      make(map[string]core.PreferenceSet),
		loaded:    make(map[string]bool),
	}
}

// Merge unions delta into userID's set, deduplicating case-insensitively.
// It reports whether anything new was added. Merging the same delta twice
// has the same effect as merging it once.
func (s *Store) Merge(ctx context.Context, userID string, delta core.PreferenceDelta) bool {
	if delta.Empty() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.load(ctx, userID)
	if !set.Merge(delta) {
		return false
	}
	s.sets[userID] = set

	if s.persister != nil {
		if err := s.persister.Save(ctx, userID, set); err != nil {
			log.Warn().Str("component", "preference").Err(err).Str("user_id", userID).
				Msg("failed to persist preferences")
		}
	}
	log.Debug().Str("component", "preference").Str("user_id", userID).Int("values", set.Len()).
		Msg("merged preferences")
	return true
}

// Get returns a snapshot of userID's preferences. An unknown user yields an
// empty set.
func (s *Store) Get(ctx context.Context, userID string) core.PreferenceSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, userID).Clone()
}

// Clear removes all of userID's preferences, including the persisted copy.
func (s *Store) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sets, userID)
	// Marked loaded so a stale persisted copy is not read back if the
	// delete below fails.
	s.loaded[userID] = true

	if s.persister != nil {
		if err := s.persister.Delete(ctx, userID); err != nil {
			return fmt.Errorf("clear preferences: %w", err)
		}
	}
	return nil
}

// Close closes the persister.
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

// load returns userID's live set, reading it from the persister on first
// access. Callers hold s.mu.
func (s *Store) load(ctx context.Context, userID string) core.PreferenceSet {
	if set, ok := s.sets[userID]; ok {
		return set
	}
	set := core.PreferenceSet{}
	if s.persister != nil && !s.loaded[userID] {
		saved, err := s.persister.Load(ctx, userID)
		if err != nil {
			log.Warn().Str("component", "preference").Err(err).Str("user_id", userID).
				Msg("failed to load persisted preferences")
		} else if saved != nil {
			set = saved
		}
	}
	s.loaded[userID] = true
	s.sets[userID] = set
	return set
}
