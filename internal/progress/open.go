package progress

import (
	"fmt"
	"log"

	"wordmoment/internal/config"
	"wordmoment/internal/database"
	"wordmoment/internal/repository"
)

// Open builds the store selected by cfg.ProgressBackend. The returned close
// function releases the database connection, if any.
func Open(cfg *config.Config) (*BlobStore, func() error, error) {
	if cfg.DatabaseType() == "" {
		log.Printf("Progress stored in file %s", cfg.ProgressFile)
		return NewBlobStore(NewFileBackend(cfg.ProgressFile)), func() error { return nil }, nil
	}

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("Progress stored in %s settings table under %q", cfg.DatabaseType(), cfg.ProgressKey)
	repo := repository.NewSettingsRepository(db)
	return NewBlobStore(NewSettingsBackend(repo, cfg.ProgressKey)), db.Close, nil
}
