package chromem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/memory"
)

// Store wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database. Each user gets their
// own collection, which is what keeps namespaces isolated.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection // per-user collections
	mu          sync.RWMutex

	// sequences holds one document per user whose metadata records the
	// highest sequence ever stored. It outlives DeleteUser.
	sequences *chromem.Collection
	seqMu     sync.Mutex
}

const (
	sequencesCollection = "sequences"
	maxSequenceKey      = "max_sequence"
)

// New creates an in-memory chromem store.
func New() (*Store, error) {
	return newStore(chromem.NewDB())
}

// NewPersistent creates a chromem store that persists collections under dir.
func NewPersistent(dir string, compress bool) (*Store, error) {
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("open persistent db: %w", err)
	}
	return newStore(db)
}

func newStore(db *chromem.DB) (*Store, error) {
	sequences, err := db.GetOrCreateCollection(sequencesCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create sequences collection: %w", err)
	}
	return &Store{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		sequences:   sequences,
	}, nil
}

func collectionName(userID string) string {
	return "user_" + userID
}

// collection returns the collection for a user, creating it if needed.
func (s *Store) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[userID]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[userID]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(
		collectionName(userID),
		map[string]string{"owner_id": userID},
		nil, // embeddings are always supplied by the caller
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[userID] = col
	return col, nil
}

// existing returns the user's collection without creating it, or nil.
func (s *Store) existing(userID string) *chromem.Collection {
	s.mu.RLock()
	col, exists := s.collections[userID]
	s.mu.RUnlock()
	if exists {
		return col
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, exists := s.collections[userID]; exists {
		return col
	}
	col = s.db.GetCollection(collectionName(userID), nil)
	if col != nil {
		s.collections[userID] = col
	}
	return col
}

// Store saves a record with its embedding.
func (s *Store) Store(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("record %s has no embedding", rec.ID)
	}
	col, err := s.collection(rec.OwnerID())
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text(),
		Embedding: rec.Embedding,
		Metadata:  rec.Metadata(),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	if err := s.raiseSequence(ctx, rec.OwnerID(), rec.Turn.Sequence); err != nil {
		return err
	}

	log.Debug().Str("component", "chromem").
		Str("id", rec.ID).Str("owner", rec.OwnerID()).Int64("sequence", rec.Turn.Sequence).
		Msg("stored record")
	return nil
}

// Query retrieves records by vector similarity.
func (s *Store) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]memory.ScoredRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	col := s.existing(userID)
	if col == nil {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size. The whole namespace is
	// scored so that ties at the cut-off are broken by insertion order rather
	// than by chromem's internal ordering.
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, map[string]string{"owner_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	candidates := make([]memory.ScoredRecord, 0, len(results))
	for i, result := range results {
		rec, err := memory.RecordFromStorage(result.ID, result.Content, result.Metadata, result.Embedding)
		if err != nil {
			log.Warn().Str("component", "chromem").Err(err).Int("result", i+1).Msg("skipping malformed result")
			continue
		}
		candidates = append(candidates, memory.ScoredRecord{
			Record: rec,
			Score:  float64(result.Similarity),
		})
	}

	return memory.Rank(candidates, limit), nil
}

// Count returns the number of records in userID's collection.
func (s *Store) Count(_ context.Context, userID string) (int, error) {
	col := s.existing(userID)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// MaxSequence returns the highest sequence ever stored for userID, or 0.
func (s *Store) MaxSequence(ctx context.Context, userID string) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.maxSequence(ctx, userID)
}

// maxSequence reads the user's high-water mark. Callers hold s.seqMu.
func (s *Store) maxSequence(ctx context.Context, userID string) (int64, error) {
	// GetByID fails only for an empty or unknown ID.
	doc, err := s.sequences.GetByID(ctx, collectionName(userID))
	if err != nil {
		return 0, nil
	}
	n, err := strconv.ParseInt(doc.Metadata[maxSequenceKey], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse max sequence for %s: %w", userID, err)
	}
	return n, nil
}

// raiseSequence moves the user's high-water mark up to seq.
func (s *Store) raiseSequence(ctx context.Context, userID string, seq int64) error {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	current, err := s.maxSequence(ctx, userID)
	if err != nil {
		return err
	}
	if seq <= current {
		return nil
	}
	err = s.sequences.AddDocument(ctx, chromem.Document{
		ID:        collectionName(userID),
		Embedding: []float32{1},
		Metadata: map[string]string{
			"owner_id":     userID,
			maxSequenceKey: strconv.FormatInt(seq, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("record max sequence: %w", err)
	}
	return nil
}

// DeleteUser drops userID's collection. The sequence high-water mark is
// kept so numbering continues after a wipe.
func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, userID)
	if err := s.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// Close releases resources. chromem-go persists on write, so there is
// nothing to flush.
func (s *Store) Close() error {
	return nil
}

var _ memory.Store = (*Store)(nil)
