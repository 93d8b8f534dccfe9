package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wordmoment/internal/database"
)

// ErrSettingNotFound is returned when no row exists for a settings key
var ErrSettingNotFound = errors.New("setting not found")

// SettingsRepository stores namespaced string values in the settings table
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSetting retrieves a setting value by key
func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, r.db, key, "")
}

// SetSetting updates or inserts a setting
func (r *SettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, r.db, key, value)
}

// UpdateSetting reads the current value of key, passes it to fn and writes the
// result back, all in one transaction. found is false when the row does not
// exist yet. An error from fn aborts the transaction without writing.
func (r *SettingsRepository) UpdateSetting(ctx context.Context, key string, fn func(current string, found bool) (string, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getSetting(ctx, tx, key, r.db.Dialect.LockingRead())
	found := true
	if errors.Is(err, ErrSettingNotFound) {
		found = false
	} else if err != nil {
		return err
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}

	if err := setSetting(ctx, tx, key, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit setting %s: %w", key, err)
	}
	return nil
}

func getSetting(ctx context.Context, db database.DBTX, key, suffix string) (string, error) {
	var value string
	query := `SELECT setting_value FROM settings WHERE setting_key = ?` + suffix
	err := db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

func setSetting(ctx context.Context, db database.DBTX, key, value string) error {
	if _, err := db.ExecContext(ctx, db.GetDialect().UpsertSetting(), key, value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
