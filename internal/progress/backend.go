package progress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wordmoment/internal/repository"
)

// MemoryBackend keeps the blob in memory. It is the in-process fake used by
// tests and by sessions that should not outlive the process.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryBackend creates a backend seeded with initial, which may be nil
func NewMemoryBackend(initial []byte) *MemoryBackend {
	return &MemoryBackend{data: clone(initial)}
}

func (b *MemoryBackend) Read(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.data), nil
}

func (b *MemoryBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(clone(b.data))
	if err != nil {
		return err
	}
	b.data = clone(next)
	return nil
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append([]byte(nil), data...)
}

// FileBackend keeps the blob in a JSON file. Writes go to a temporary file in
// the same directory that is then renamed over the target, so a crash leaves
// either the old or the new blob.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend creates a backend for the file at path
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}
	return data, nil
}

func (b *FileBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.Read(ctx)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	return b.write(next)
}

func (b *FileBackend) write(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write progress file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close progress file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("failed to replace progress file: %w", err)
	}
	return nil
}

// SettingsBackend keeps the blob in a row of the SQL settings table
type SettingsBackend struct {
	repo *repository.SettingsRepository
	key  string
}

// NewSettingsBackend creates a backend storing the blob under key
func NewSettingsBackend(repo *repository.SettingsRepository, key string) *SettingsBackend {
	return &SettingsBackend{repo: repo, key: key}
}

func (b *SettingsBackend) Read(ctx context.Context) ([]byte, error) {
	value, err := b.repo.GetSetting(ctx, b.key)
	if errors.Is(err, repository.ErrSettingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (b *SettingsBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	return b.repo.UpdateSetting(ctx, b.key, func(current string, found bool) (string, error) {
		var data []byte
		if found {
			data = []byte(current)
		}
		next, err := fn(data)
		if err != nil {
			return "", err
		}
		return string(next), nil
	})
}
