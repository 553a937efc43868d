package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"expiring-cache/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLite stores a snapshot in the cache_entries table. Values are kept as JSON
// text so the round trip matches the JSON file codec.
type SQLite struct {
	db *gorm.DB
}

// NewSQLite returns a codec over an already migrated database.
func NewSQLite(db *gorm.DB) *SQLite {
	return &SQLite{db: db}
}

// Read implements Codec.Read.
func (s *SQLite) Read(ctx context.Context) ([]models.Entry, error) {
	var rows []models.EntryRow
	if err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read cache entries: %w", err)
	}

	entries := make([]models.Entry, 0, len(rows))
	for _, row := range rows {
		value, err := models.DecodeValue([]byte(row.Value))
		if err != nil {
			// Whole snapshot or nothing.
			return nil, fmt.Errorf("%w: key %q: %v", ErrCorrupt, row.Key, err)
		}
		entries = append(entries, models.Entry{
			Key:      row.Key,
			Value:    value,
			InsertAt: row.InsertAt,
			Exp:      row.Exp,
		})
	}
	return entries, nil
}

// Write implements Codec.Write. Existing rows are replaced in one transaction.
func (s *SQLite) Write(ctx context.Context, entries []models.Entry) error {
	rows := make([]models.EntryRow, 0, len(entries))
	for _, e := range sortEntries(entries) {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrUnrepresentable, e.Key, err)
		}
		rows = append(rows, models.EntryRow{
			Key:      e.Key,
			Value:    string(value),
			InsertAt: e.InsertAt,
			Exp:      e.Exp,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.EntryRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear cache entries: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
			return fmt.Errorf("failed to write cache entries: %w", err)
		}
		return nil
	})
}

var _ Codec = (*SQLite)(nil)
