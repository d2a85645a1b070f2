// Package memory provides the per-user memory layers of the travel assistant.
//
// Two layers live here:
//   - ShortTermMemory: a fixed-size FIFO window of the most recent turns,
//     used verbatim in every prompt.
//   - LongTermMemory: a similarity-searchable archive of every committed
//     turn, backed by a vector Store and an Embedder.
//
// Both layers are namespaced by user ID. A query for one user never
// surfaces another user's data, and an unknown user reads as empty.
//
// Long-term recall is an enhancement, not a requirement: when the Embedder
// or the Store fails, LongTermMemory logs and degrades to "no results"
// instead of returning an error.
//
// Backends:
//   - store/chromem: embedded chromem-go database (default)
//   - store/sqlite: SQLite table with Go-side cosine ranking
//   - embedder/mock: deterministic hash embedder (tests, offline runs)
//   - embedder/openai: OpenAI-compatible embeddings API
//   - embedder/onnx: local all-MiniLM-L6-v2 (build tag "onnx")
//   - embedder/cached: ristretto cache in front of any embedder
package memory
