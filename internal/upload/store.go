// Package upload spills uploaded recipient files to disk for the duration of
// a single parse.
package upload

import (
	"io"
	"os"
	"path/filepath"
)

type Store struct {
	dir string
}

// New ensures the uploads directory exists.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Save writes src to a temp file under the store's directory and returns its
// path plus a cleanup func. Callers must invoke cleanup on every exit path;
// Save itself removes the file when the copy fails.
func (s *Store) Save(src io.Reader) (string, func(), error) {
	f, err := os.CreateTemp(s.dir, "recipients-*.csv")
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// Dir reports the directory uploads are written to.
func (s *Store) Dir() string { return filepath.Clean(s.dir) }
