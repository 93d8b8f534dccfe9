package progress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordmoment/internal/database"
	"wordmoment/internal/models"
	"wordmoment/internal/repository"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "progress.json")
	store := NewBlobStore(NewFileBackend(path))

	_, ok := store.Load(ctx, "CET4", "Unit 1")
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "CET4", "Unit 1", models.PersistedProgress{Cursor: 3}))
	require.NoError(t, store.Save(ctx, "CET4", "Unit 2", models.PersistedProgress{Cursor: 0, Finished: true}))

	// A second store over the same file sees both records
	reopened := NewBlobStore(NewFileBackend(path))
	got, ok := reopened.Load(ctx, "CET4", "Unit 1")
	require.True(t, ok)
	assert.Equal(t, 3, got.Cursor)
	assert.True(t, IsFinished(ctx, reopened, "CET4", "Unit 2"))

	// No temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBackendCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("\x00\x01garbage"), 0o644))

	store := NewBlobStore(NewFileBackend(path))
	_, ok := store.Load(ctx, "CET4", "Unit 1")
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "CET4", "Unit 1", models.PersistedProgress{Cursor: 1}))
	got, ok := store.Load(ctx, "CET4", "Unit 1")
	require.True(t, ok)
	assert.Equal(t, 1, got.Cursor)
}

func TestConcurrentSavesKeepEveryUnit(t *testing.T) {
	ctx := context.Background()
	store := NewBlobStore(NewFileBackend(filepath.Join(t.TempDir(), "progress.json")))
	units := []string{"Unit 1", "Unit 2", "Unit 3", "Unit 4", "Unit 5", "Unit 6"}

	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		go func(cursor int, unit string) {
			defer wg.Done()
			assert.NoError(t, store.Save(ctx, "CET4", unit, models.PersistedProgress{Cursor: cursor}))
		}(i, unit)
	}
	wg.Wait()

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all["CET4"], len(units))
}

func TestSettingsBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping SQLite test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations())

	ctx := context.Background()
	repo := repository.NewSettingsRepository(db)
	store := NewBlobStore(NewSettingsBackend(repo, "wordmoment_progress"))

	_, ok := store.Load(ctx, "CET4", "Unit 1")
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "CET4", "Unit 1", models.PersistedProgress{Cursor: 2}))
	require.NoError(t, store.Save(ctx, "CET4", "Unit 2", models.PersistedProgress{Cursor: 4, Finished: true}))

	got, ok := store.Load(ctx, "CET4", "Unit 1")
	require.True(t, ok)
	assert.Equal(t, models.PersistedProgress{Cursor: 2}, got)

	// Malformed row content degrades to absent and is repaired on the next save
	require.NoError(t, repo.SetSetting(ctx, "wordmoment_progress", "not json"))
	_, ok = store.Load(ctx, "CET4", "Unit 1")
	assert.False(t, ok)
	require.NoError(t, store.Save(ctx, "CET4", "Unit 1", models.PersistedProgress{Cursor: 0}))
	got, ok = store.Load(ctx, "CET4", "Unit 1")
	require.True(t, ok)
	assert.Equal(t, 0, got.Cursor)
}
