package chromem

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	chromem "github.com/philippgille/chromem-go"

	"github.com/nexuslabs/nexus-go/logging"
	"github.com/nexuslabs/nexus-go/memory"
)

// DefaultCollection is the name of the collection holding all memories.
const DefaultCollection = "nexus_memory"

const createdAtKey = "created_at"

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	db   *chromem.DB
	name string
	col  *chromem.Collection
	mu   sync.RWMutex
}

// Option configures a ChromemStore.
type Option func(*options)

type options struct {
	collection string
	persistDir string
	compress   bool
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// WithPersistence stores the collection under dir, surviving restarts.
func WithPersistence(dir string, compress bool) Option {
	return func(o *options) {
		o.persistDir = dir
		o.compress = compress
	}
}

// New creates a new chromem-based store. Without WithPersistence the
// store lives in memory only.
func New(opts ...Option) (*ChromemStore, error) {
	o := options{collection: DefaultCollection}
	for _, opt := range opts {
		opt(&o)
	}

	var db *chromem.DB
	if o.persistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(o.persistDir, o.compress)
		if err != nil {
			return nil, errors.Wrapf(err, "open persistent db at %s", o.persistDir)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &ChromemStore{db: db, name: o.collection}
	if err := s.openCollection(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromemStore) openCollection() error {
	col, err := s.db.GetOrCreateCollection(
		s.name,
		nil, // No collection metadata
		nil, // No custom embedding func (we provide embeddings)
	)
	if err != nil {
		return errors.Wrap(err, "create collection")
	}
	s.col = col
	return nil
}

func (s *ChromemStore) collection() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col
}

// Store saves an entry with its embedding.
func (s *ChromemStore) Store(ctx context.Context, entry *memory.Entry) error {
	if len(entry.Embedding()) == 0 {
		return errors.Errorf("entry %s has no embedding", entry.ID)
	}

	metadata := make(map[string]string, len(entry.Metadata)+1)
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	metadata[createdAtKey] = entry.CreatedAt.Format(time.RFC3339Nano)

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: entry.Embedding(),
		Metadata:  metadata,
	}
	if err := s.collection().AddDocument(ctx, doc); err != nil {
		return errors.Wrap(err, "add document")
	}
	return nil
}

// Query retrieves entries by vector similarity.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, limit int) ([]memory.Entry, error) {
	col := s.collection()

	// chromem-go requires nResults <= collection size
	if n := col.Count(); limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "chromem query")
	}

	entries := make([]memory.Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, toEntry(r))
	}

	logging.For("chromem").Debug().
		Int("limit", limit).
		Int("results", len(entries)).
		Msg("queried collection")
	return entries, nil
}

// Delete removes an entry by id.
func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	if err := s.collection().Delete(ctx, nil, nil, id); err != nil {
		return errors.Wrapf(err, "delete %s", id)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection().Count(), nil
}

// Reset drops and recreates the collection.
func (s *ChromemStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return errors.Wrap(err, "delete collection")
	}
	return s.openCollection()
}

// Close releases resources.
func (s *ChromemStore) Close() error {
	// chromem-go writes through on every add, nothing to flush
	return nil
}

func toEntry(r chromem.Result) memory.Entry {
	distance := 1 - r.Similarity

	metadata := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		if k != createdAtKey {
			metadata[k] = v
		}
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, r.Metadata[createdAtKey])

	e := memory.Entry{
		ID:        r.ID,
		Content:   r.Content,
		Metadata:  metadata,
		CreatedAt: createdAt,
		Distance:  &distance,
	}
	e.SetEmbedding(r.Embedding)
	return e
}
