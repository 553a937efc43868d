package models

// EntryRow is the SQLite representation of an Entry. Value holds the JSON
// encoding of the cached value.
type EntryRow struct {
	Key      string `gorm:"primaryKey"`
	Value    string `gorm:"not null"`
	InsertAt int64  `gorm:"column:insert_at;not null"`
	Exp      int64  `gorm:"not null;default:-1"`
}

// TableName specifies the table name for EntryRow Model
func (EntryRow) TableName() string {
	return "cache_entries"
}
