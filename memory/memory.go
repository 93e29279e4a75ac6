package memory

import (
	"context"
	"time"

	"github.com/nexuslabs/nexus-go/core"
)

// Entry is one semantic memory.
type Entry struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"-"`

	// Distance is the cosine distance to the query; only set on query results.
	Distance *float32 `json:"distance,omitempty"`

	embedding []float32
}

// Embedding returns the entry's vector, if loaded.
func (e *Entry) Embedding() []float32 {
	return e.embedding
}

// SetEmbedding sets the entry's vector.
func (e *Entry) SetEmbedding(emb []float32) {
	e.embedding = emb
}

// Format renders the entry for prompt injection, truncated to maxLen characters.
func (e *Entry) Format(maxLen int) string {
	return core.Truncate(e.Content, maxLen)
}

// Manager is the semantic memory the Engine talks to.
type Manager interface {
	// Add embeds and stores content, returning the new entry id.
	Add(ctx context.Context, content string, metadata map[string]string) (string, error)

	// Query returns up to n entries nearest to text, closest first.
	// An empty store yields no entries and no error.
	Query(ctx context.Context, text string, n int) ([]Entry, error)

	// Delete removes one entry.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// Store is the vector storage backend interface.
// Implementations: ChromemStore.
type Store interface {
	// Store saves an entry. The entry must have its embedding set.
	Store(ctx context.Context, entry *Entry) error

	// Query retrieves entries by vector similarity, highest similarity first.
	Query(ctx context.Context, embedding []float32, limit int) ([]Entry, error)

	// Delete removes an entry permanently.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Reset removes all entries.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (hashing, offline), remote (OpenAI/Ollama), cached (ristretto wrapper).
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size, or 0 if unknown until first use.
	Dimensions() int
}
