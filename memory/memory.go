package memory

import (
	"context"
)

// Store is the vector storage backend for long-term memory.
// Implementations: chromem.Store (embedded), sqlite.Store (SQL table).
type Store interface {
	// Store saves a record. The record's embedding must be set.
	Store(ctx context.Context, rec *Record) error

	// Query returns up to limit records from userID's namespace ranked by
	// similarity to embedding, highest first. Equal scores keep insertion
	// order (lower sequence first). An empty namespace yields no results
	// and no error.
	Query(ctx context.Context, userID string, embedding []float32, limit int) ([]ScoredRecord, error)

	// Count returns the number of records in userID's namespace.
	Count(ctx context.Context, userID string) (int, error)

	// MaxSequence returns the highest turn sequence ever stored for
	// userID, or 0 when nothing was. It is not lowered by DeleteUser, so a
	// restarted process can continue numbering without reusing sequences.
	MaxSequence(ctx context.Context, userID string) (int64, error)

	// DeleteUser removes every record in userID's namespace.
	DeleteUser(ctx context.Context, userID string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), openai (API), onnx (local model).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding size, or 0 when it is only known
	// after the first call.
	Dimensions() int
}
