package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// LocalVariantStore writes variants under a media directory, mirroring the
// key layout of the S3 store.
type LocalVariantStore struct {
	dir string
}

func NewLocalVariantStore(dir string) (*LocalVariantStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &LocalVariantStore{dir: dir}, nil
}

func (s *LocalVariantStore) Save(ctx context.Context, key string, data io.Reader, contentType string) error {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, data)
	return err
}

// NoOpVariantStore drains and discards, for tests and dry runs.
type NoOpVariantStore struct{}

func (NoOpVariantStore) Save(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := io.Copy(io.Discard, data)
	return err
}
