package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expiring-cache/internal/declare"
	"expiring-cache/internal/expiry"
	"expiring-cache/internal/models"
)

// Common errors for Load and Flush
var (
	// ErrLoad wraps snapshot read failures
	ErrLoad = errors.New("cache load failed")

	// ErrFlush wraps snapshot write failures
	ErrFlush = errors.New("cache flush failed")

	// ErrDeclarations wraps declarations skipped during Load
	ErrDeclarations = errors.New("cache declarations skipped")
)

// Load reads the snapshot into the store, dropping entries that expired while
// persisted, then applies the declarations according to the declaration
// policy. Loaded entries keep their original insertion time. Entries already
// in the store are kept unless the snapshot or a declaration replaces them.
//
// A missing or unreadable snapshot leaves the store as if the snapshot were
// empty; see ErrorPolicy for whether the failure is returned.
func (s *Store) Load(ctx context.Context) error {
	var errs []error

	var entries []models.Entry
	if s.opts.Codec != nil {
		var err error
		entries, err = s.opts.Codec.Read(ctx)
		if err != nil {
			s.logger.Error("failed to read cache snapshot, starting empty", "err", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrLoad, err))
			entries = nil
		}
	}

	// Declaration values are read without the lock so that they may use the store.
	var declared []declaredValue
	seeded, err := declare.Scan(s.opts.Declarations, func(key string, value any, ttl time.Duration) {
		declared = append(declared, declaredValue{key: key, value: value, ttl: ttl})
	}, s.logger)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrDeclarations, err))
	}

	unlock := s.lockW()
	defer unlock()

	ts := now()
	loaded, dropped := 0, 0
	for _, e := range entries {
		if e.Key == "" {
			dropped++
			continue
		}
		rec := e.Record()
		if rec.Expired(ts) {
			dropped++
			continue
		}
		s.set(e.Key, e.Value, rec)
		loaded++
	}

	sink := s.declarationSink(ts)
	for _, d := range declared {
		sink(d.key, d.value, d.ttl)
	}

	s.logger.Debug("cache loaded",
		"loaded", loaded,
		"dropped", dropped,
		"declared", seeded,
		"policy", s.opts.DeclarationPolicy,
	)
	return s.report(errors.Join(errs...))
}

type declaredValue struct {
	key   string
	value any
	ttl   time.Duration
}

// declarationSink registers declared values. Must be called with the write lock held.
func (s *Store) declarationSink(ts time.Time) declare.Sink {
	return func(key string, value any, ttl time.Duration) {
		if s.opts.DeclarationPolicy == DeclarationsPreservePersisted {
			if rec, ok := s.records[key]; ok && !rec.Expired(ts) {
				return
			}
		}
		s.set(key, value, expiry.New(ts, ttl))
	}
}

// Flush purges expired entries and writes every remaining entry through the
// codec, replacing the previous snapshot. The in-memory state is unaffected by
// a failed write.
func (s *Store) Flush(ctx context.Context) error {
	entries := s.snapshot()
	if s.opts.Codec == nil {
		return nil
	}

	if err := s.opts.Codec.Write(ctx, entries); err != nil {
		s.logger.Error("failed to write cache snapshot, changes not persisted", "err", err)
		return s.report(fmt.Errorf("%w: %w", ErrFlush, err))
	}
	s.logger.Debug("cache flushed", "entries", len(entries))
	return nil
}

// snapshot purges and returns the live entries.
func (s *Store) snapshot() []models.Entry {
	unlock := s.lockW()
	defer unlock()

	s.purgeLocked(now())
	entries := make([]models.Entry, 0, len(s.values))
	for k, v := range s.values {
		entries = append(entries, models.NewEntry(k, v, s.records[k]))
	}
	return entries
}

// report applies the error policy to err.
func (s *Store) report(err error) error {
	if err == nil || s.opts.ErrorPolicy == ErrorsDegrade {
		return nil
	}
	return err
}
