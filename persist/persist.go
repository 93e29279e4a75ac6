// Package persist abstracts whole-document persistence for low-volume state
// such as learned patterns, skills and the episodic log.
//
// Every Save rewrites the complete document. Backends:
//   - FileStore: one indented JSON file per document
//   - SQLite: one row per document in a shared database (modernc.org/sqlite)
package persist

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Load when no document has been saved yet.
var ErrNotFound = errors.New("document not found")

// Store loads and saves a single JSON-serializable document.
type Store interface {
	// Load decodes the stored document into v.
	// Returns ErrNotFound if nothing has been saved yet.
	Load(ctx context.Context, v interface{}) error

	// Save replaces the stored document with v.
	Save(ctx context.Context, v interface{}) error
}

// Memory is an in-process Store used in tests and when persistence is disabled.
type Memory struct {
	data []byte
	// FailSave makes Save return an error, for exercising persistence failures.
	FailSave error
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context, v interface{}) error {
	if m.data == nil {
		return ErrNotFound
	}
	return errors.Wrap(unmarshal(m.data, v), "decode document")
}

func (m *Memory) Save(ctx context.Context, v interface{}) error {
	if m.FailSave != nil {
		return m.FailSave
	}
	data, err := marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}
	m.data = data
	return nil
}
