package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"wordmoment/internal/models"
	"wordmoment/internal/progress"
)

// BackupVersion is the format version written by Export
const BackupVersion = "1.0"

// ErrProgressNotFound is returned by Show for a unit without a saved record
var ErrProgressNotFound = errors.New("no saved progress")

// BackupData is the export file layout
type BackupData struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Progress   json.RawMessage `json:"progress"`
}

// BackupService exports, imports and inspects the progress blob
type BackupService struct {
	store *progress.BlobStore
	now   func() time.Time
}

// NewBackupService creates a new backup service
func NewBackupService(store *progress.BlobStore) *BackupService {
	return &BackupService{store: store, now: time.Now}
}

// Export writes a backup of the progress blob to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	log.Println("Starting progress export...")

	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	log.Printf("Progress export completed: %s", outputPath)
	return nil
}

// ExportToWriter writes a backup of the progress blob to w
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	raw, err := s.store.Raw(ctx)
	if err != nil {
		return fmt.Errorf("failed to export progress: %w", err)
	}

	backup := &BackupData{
		Version:    BackupVersion,
		ExportedAt: s.now().UTC(),
		Progress:   raw,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Import restores progress from a backup file. With replace the whole blob
// is overwritten, otherwise imported units are merged into it.
func (s *BackupService) Import(ctx context.Context, inputPath string, replace bool) (int, error) {
	log.Printf("Starting progress import from %s...", inputPath)

	file, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file, replace)
}

// ImportFromReader restores progress from a backup reader. It returns the
// number of unit records imported.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader, replace bool) (int, error) {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return 0, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return 0, fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt)

	if !replace {
		n, err := s.store.Import(ctx, backup.Progress)
		if err != nil {
			return 0, fmt.Errorf("failed to import progress: %w", err)
		}
		log.Printf("Progress import completed: %d units merged", n)
		return n, nil
	}

	if err := s.store.Replace(ctx, backup.Progress); err != nil {
		return 0, fmt.Errorf("failed to replace progress: %w", err)
	}
	all, err := s.store.All(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, units := range all {
		n += len(units)
	}
	log.Printf("Progress import completed: blob replaced, %d units", n)
	return n, nil
}

// Show returns every record, the records of one level, or a single record,
// depending on which of levelID and unitID are set
func (s *BackupService) Show(ctx context.Context, levelID, unitID string) (any, error) {
	if levelID != "" && unitID != "" {
		record, ok := s.store.Load(ctx, levelID, unitID)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrProgressNotFound, levelID, unitID)
		}
		return record, nil
	}

	all, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	if levelID == "" {
		return all, nil
	}

	units, ok := all[levelID]
	if !ok {
		return map[string]models.PersistedProgress{}, nil
	}
	return units, nil
}

// Reset writes a fresh record for one unit
func (s *BackupService) Reset(ctx context.Context, levelID, unitID string) error {
	if err := s.store.Save(ctx, levelID, unitID, models.PersistedProgress{}); err != nil {
		return err
	}
	log.Printf("Progress reset: %s/%s", levelID, unitID)
	return nil
}
