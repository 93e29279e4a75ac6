package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/logging"
)

// SimpleManager is the default Manager: embed, store, nearest-neighbor query.
type SimpleManager struct {
	store    Store
	embedder Embedder // Internal: Engine never sees this
	config   *Config
	now      func() time.Time
}

// NewSimpleManager creates a new SimpleManager.
func NewSimpleManager(store Store, embedder Embedder, config *Config) *SimpleManager {
	if config == nil {
		config = DefaultConfig
	}
	return &SimpleManager{
		store:    store,
		embedder: embedder,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Add embeds content and stores it under a fresh uuid.
// A "timestamp" metadata key is always set.
func (m *SimpleManager) Add(ctx context.Context, content string, metadata map[string]string) (string, error) {
	if !m.config.Enabled {
		return "", nil // Memory disabled
	}

	now := m.now()
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["timestamp"] = now.Format(time.RFC3339Nano)

	entry := &Entry{
		ID:        uuid.New().String(),
		Content:   content,
		Metadata:  meta,
		CreatedAt: now,
	}

	embedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return "", errors.Wrap(err, "embed content")
	}
	entry.SetEmbedding(embedding)

	if err := m.store.Store(ctx, entry); err != nil {
		return "", errors.Wrap(err, "store entry")
	}

	logging.For("memory").Debug().
		Str("id", entry.ID).
		Str("type", meta["type"]).
		Msg("stored memory")
	return entry.ID, nil
}

// Query finds the n entries most similar to text.
func (m *SimpleManager) Query(ctx context.Context, text string, n int) ([]Entry, error) {
	if !m.config.Enabled || n <= 0 {
		return nil, nil
	}

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	entries, err := m.store.Query(ctx, embedding, n)
	if err != nil {
		return nil, errors.Wrap(err, "query store")
	}

	// Drop entries below the similarity floor
	if m.config.MinSimilarity > 0 {
		kept := entries[:0]
		for _, e := range entries {
			if e.Distance == nil || 1-float64(*e.Distance) >= m.config.MinSimilarity {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	logging.For("memory").Debug().
		Int("count", len(entries)).
		Str("query", core.Truncate(text, 50)).
		Msg("retrieved memories")
	return entries, nil
}

// Delete removes one entry.
func (m *SimpleManager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Count returns the number of stored entries.
func (m *SimpleManager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// Clear removes every entry.
func (m *SimpleManager) Clear(ctx context.Context) error {
	if err := m.store.Reset(ctx); err != nil {
		return errors.Wrap(err, "reset store")
	}
	logging.For("memory").Info().Msg("semantic memory cleared")
	return nil
}

// Config holds SimpleManager configuration.
type Config struct {
	// Enabled toggles the memory system on/off.
	Enabled bool

	// MinSimilarity is the minimum cosine similarity for retrieval [0.0-1.0].
	// Default: 0 (always return the nearest entries).
	MinSimilarity float64
}

// DefaultConfig returns defaults: enabled, no similarity floor.
var DefaultConfig = &Config{
	Enabled:       true,
	MinSimilarity: 0,
}
