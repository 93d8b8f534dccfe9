package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"wordmoment/internal/models"
)

// ErrInvalidBlob is returned when a whole blob handed to Replace or Import is
// not a JSON object
var ErrInvalidBlob = errors.New("progress blob must be a JSON object")

// Store loads and saves progress records keyed by (level, unit)
type Store interface {
	// Load returns the saved record and true, or false when nothing usable is stored
	Load(ctx context.Context, levelID, unitID string) (models.PersistedProgress, bool)
	// Save merge-writes a single record
	Save(ctx context.Context, levelID, unitID string, record models.PersistedProgress) error
}

// Backend holds the raw blob
type Backend interface {
	// Read returns the stored blob, or nil when nothing has been written yet
	Read(ctx context.Context) ([]byte, error)
	// Update replaces the blob with fn(current) atomically with respect to
	// other writers of the same backend
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}

// BlobStore implements Store over a Backend
type BlobStore struct {
	backend Backend
	logger  *log.Logger

	// serialises read-modify-write within the process
	mu sync.Mutex
}

// NewBlobStore creates a store over backend
func NewBlobStore(backend Backend) *BlobStore {
	return &BlobStore{backend: backend, logger: log.Default()}
}

// SetLogger replaces the logger used for recovered read failures
func (s *BlobStore) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Load returns the record for (levelID, unitID). Backend failures and
// malformed content are logged and reported as absent.
func (s *BlobStore) Load(ctx context.Context, levelID, unitID string) (models.PersistedProgress, bool) {
	data, err := s.backend.Read(ctx)
	if err != nil {
		s.logger.Printf("Failed to load progress for %s/%s: %v", levelID, unitID, err)
		return models.PersistedProgress{}, false
	}
	return lookup(data, levelID, unitID)
}

// Save merge-writes record under (levelID, unitID)
func (s *BlobStore) Save(ctx context.Context, levelID, unitID string, record models.PersistedProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.backend.Update(ctx, func(current []byte) ([]byte, error) {
		return merge(current, levelID, unitID, record)
	})
	if err != nil {
		return fmt.Errorf("failed to save progress for %s/%s: %w", levelID, unitID, err)
	}
	return nil
}

// All returns every well-formed record in the blob. Malformed levels and
// records are skipped.
func (s *BlobStore) All(ctx context.Context) (map[string]map[string]models.PersistedProgress, error) {
	data, err := s.backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	return records(data), nil
}

// Raw returns the stored blob, normalised to "{}" when nothing usable is stored
func (s *BlobStore) Raw(ctx context.Context) (json.RawMessage, error) {
	data, err := s.backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	if _, ok := decodeObject(data); !ok {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(data), nil
}

// Replace overwrites the whole blob with data
func (s *BlobStore) Replace(ctx context.Context, data json.RawMessage) error {
	if _, ok := decodeObject(data); !ok {
		return ErrInvalidBlob
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend.Update(ctx, func([]byte) ([]byte, error) {
		return data, nil
	})
}

// Import merges every unit record of data into the stored blob. Levels and
// units absent from data are left untouched. The count covers well-formed
// records only; malformed ones are merged verbatim but read back as absent.
func (s *BlobStore) Import(ctx context.Context, data json.RawMessage) (int, error) {
	incoming, ok := decodeObject(data)
	if !ok {
		return 0, ErrInvalidBlob
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	err := s.backend.Update(ctx, func(current []byte) ([]byte, error) {
		imported = 0
		top, _ := decodeObject(current)
		for levelID, levelRaw := range incoming {
			units, ok := decodeObject(levelRaw)
			if !ok {
				continue
			}
			level, _ := decodeObject(top[levelID])
			for unitID, unitRaw := range units {
				level[unitID] = unitRaw
				if _, valid := decodeRecord(unitRaw); valid {
					imported++
				}
			}
			encoded, err := json.Marshal(level)
			if err != nil {
				return nil, err
			}
			top[levelID] = encoded
		}
		return json.Marshal(top)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import progress: %w", err)
	}
	return imported, nil
}

// IsFinished reports whether the unit has a saved record marked finished
func IsFinished(ctx context.Context, store Store, levelID, unitID string) bool {
	record, ok := store.Load(ctx, levelID, unitID)
	return ok && record.Finished
}
