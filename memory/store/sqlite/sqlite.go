// Package sqlite implements memory.Store on SQLite (modernc.org/sqlite, no
// cgo). Embeddings are stored as JSON-encoded float32 arrays and ranked with
// cosine similarity in Go, which is adequate for the hundreds to low
// thousands of turns a single user accumulates.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS ltm_records (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	sequence        INTEGER NOT NULL,
	role            TEXT NOT NULL,
	text            TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	embedding       TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ltm_records_owner ON ltm_records (owner_id, sequence);
CREATE TABLE IF NOT EXISTS ltm_sequences (
	owner_id     TEXT PRIMARY KEY,
	max_sequence INTEGER NOT NULL
);`

// Store is a SQLite-backed memory.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ltm sqlite: open: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and ensures the schema exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ltm sqlite: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Store persists a record.
func (s *Store) Store(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("ltm sqlite: record %s has no embedding", rec.ID)
	}
	embeddingJSON, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("ltm sqlite: marshal embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ltm_records
			(id, owner_id, sequence, role, text, conversation_id, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.OwnerID(),
		rec.Turn.Sequence,
		string(rec.Turn.Role),
		rec.Text(),
		rec.Turn.ConversationID,
		string(embeddingJSON),
		rec.Turn.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("ltm sqlite: insert record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ltm_sequences (owner_id, max_sequence) VALUES (?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET max_sequence = MAX(max_sequence, excluded.max_sequence)`,
		rec.OwnerID(), rec.Turn.Sequence,
	)
	if err != nil {
		return fmt.Errorf("ltm sqlite: record max sequence: %w", err)
	}
	return nil
}

// Query loads every embedding in userID's namespace and ranks them.
func (s *Store) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]memory.ScoredRecord, error) {
	if limit <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, sequence, role, text, conversation_id, embedding, created_at
		FROM ltm_records
		WHERE owner_id = ?
		ORDER BY sequence ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ltm sqlite: query records: %w", err)
	}
	defer rows.Close()

	var candidates []memory.ScoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			log.Warn().Str("component", "ltm-sqlite").Err(err).Msg("skip malformed row")
			continue
		}
		candidates = append(candidates, memory.ScoredRecord{
			Record: rec,
			Score:  memory.CosineSimilarity(embedding, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ltm sqlite: iterate rows: %w", err)
	}

	return memory.Rank(candidates, limit), nil
}

// Count returns the number of records in userID's namespace.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ltm_records WHERE owner_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ltm sqlite: count: %w", err)
	}
	return n, nil
}

// MaxSequence returns the highest sequence ever stored for userID, or 0.
// The high-water mark survives DeleteUser.
func (s *Store) MaxSequence(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(sequence) FROM ltm_records WHERE owner_id = ?), 0),
			COALESCE((SELECT max_sequence FROM ltm_sequences WHERE owner_id = ?), 0)
		)`, userID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ltm sqlite: max sequence: %w", err)
	}
	return n, nil
}

// DeleteUser removes all of userID's records.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ltm_records WHERE owner_id = ?`, userID); err != nil {
		return fmt.Errorf("ltm sqlite: delete: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (*memory.Record, error) {
	var (
		rec           memory.Record
		role          string
		embeddingJSON string
		createdAt     string
	)
	err := rows.Scan(
		&rec.ID,
		&rec.Turn.UserID,
		&rec.Turn.Sequence,
		&role,
		&rec.Turn.Text,
		&rec.Turn.ConversationID,
		&embeddingJSON,
		&createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	rec.Turn.Role = core.Role(role)

	if err := json.Unmarshal([]byte(embeddingJSON), &rec.Embedding); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.Turn.Timestamp = ts
	return &rec, nil
}

var _ memory.Store = (*Store)(nil)
