package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Setting labels read by the ingestion pipeline.
const (
	SettingChunkSize    = "text_splitter_chunk_size"
	SettingChunkOverlap = "text_splitter_chunk_overlap"
)

// SettingsProvider reads and writes runtime settings by label.
type SettingsProvider interface {
	// GetValueOrFallback returns the stored value, or fallback when the label
	// is unset or empty.
	GetValueOrFallback(ctx context.Context, label, fallback string) (string, error)
	SetValue(ctx context.Context, label, value string) error
}

// Settings is the sqlite SettingsProvider backed by system_settings.
type Settings struct {
	db *DB
}

func NewSettings(db *DB) *Settings {
	return &Settings{db: db}
}

func (s *Settings) GetValueOrFallback(ctx context.Context, label, fallback string) (string, error) {
	var value sql.NullString
	err := s.db.conn.QueryRowContext(ctx,
		"SELECT value FROM system_settings WHERE label = ?", label).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("reading setting %s: %w", label, err)
	}
	if !value.Valid || value.String == "" {
		return fallback, nil
	}
	return value.String, nil
}

func (s *Settings) SetValue(ctx context.Context, label, value string) error {
	_, err := s.db.conn.ExecContext(ctx, `
	INSERT INTO system_settings (label, value) VALUES (?, ?)
	ON CONFLICT(label) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		label, value)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", label, err)
	}
	return nil
}
