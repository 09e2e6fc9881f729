package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSnapshot is returned by Load when the slot has never been written.
var ErrNoSnapshot = errors.New("no snapshot in slot")

// Store persists framed record blobs by slot name.
type Store interface {
	Save(ctx context.Context, slot string, data []byte) error
	Load(ctx context.Context, slot string) ([]byte, error)
}

// FileStore keeps one file per slot under a directory. Writes go through a
// temp file and rename so a crash never leaves a half-written snapshot.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(slot string) string {
	return filepath.Join(s.dir, slot+".snapshot")
}

func (s *FileStore) Save(_ context.Context, slot string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, slot+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(name, s.path(slot)); err != nil {
		os.Remove(name)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, slot string) ([]byte, error) {
	data, err := os.ReadFile(s.path(slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}
