package models

import (
	"bytes"
	"encoding/json"
	"time"

	"expiring-cache/internal/expiry"
)

// Entry is one persisted cache record. A snapshot file is a JSON array of entries.
type Entry struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	InsertAt int64  `json:"insertAt"`
	Exp      int64  `json:"exp"`
}

// NewEntry builds the persisted form of a key, value and its expiration record.
func NewEntry(key string, value any, rec expiry.Record) Entry {
	insertAt, exp := rec.Millis()
	return Entry{
		Key:      key,
		Value:    value,
		InsertAt: insertAt,
		Exp:      exp,
	}
}

// Record returns the expiration record stored in e.
func (e Entry) Record() expiry.Record {
	return expiry.FromMillis(e.InsertAt, e.Exp)
}

// Expired reports whether e had already expired at now.
func (e Entry) Expired(now time.Time) bool {
	return e.Record().Expired(now)
}

// UnmarshalJSON accepts the older "insert" field name for the insertion time.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key      string          `json:"key"`
		Value    json.RawMessage `json:"value"`
		InsertAt *int64          `json:"insertAt"`
		Insert   *int64          `json:"insert"`
		Exp      *int64          `json:"exp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	value, err := DecodeValue(raw.Value)
	if err != nil {
		return err
	}
	e.Key = raw.Key
	e.Value = value
	switch {
	case raw.InsertAt != nil:
		e.InsertAt = *raw.InsertAt
	case raw.Insert != nil:
		e.InsertAt = *raw.Insert
	}
	// A missing exp means the entry never expires.
	e.Exp = -1
	if raw.Exp != nil {
		e.Exp = *raw.Exp
	}
	return nil
}

// DecodeValue decodes a persisted JSON value. Integral numbers that fit in an
// int64 come back as int64, other numbers as float64.
func DecodeValue(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}
