package persist

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore keeps a document as an indented JSON file.
// Writes go to a temporary file that is renamed over the target.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path, creating parent directories.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", path)
	}
	return &FileStore{path: path}, nil
}

// Path returns the file backing this store.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(ctx context.Context, v interface{}) error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", f.path)
	}
	if err := unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decode %s", f.path)
	}
	return nil
}

func (f *FileStore) Save(ctx context.Context, v interface{}) error {
	data, err := marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(err, "replace %s", f.path)
	}
	return nil
}
