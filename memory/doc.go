// Package memory provides the agent's semantic memory: free-text entries
// retrievable by embedding similarity.
//
// Architecture:
//   - Store: vector storage backend (chromem-go, in-memory or persisted to disk)
//   - Embedder: text-to-vector conversion (hashing mock, or remote OpenAI/Ollama
//     embeddings through chromem-go, optionally behind a ristretto cache)
//   - Manager: embeds and stores entries, answers nearest-neighbor queries
//
// Entries are immutable once written and are removed only by Delete or Clear.
package memory
