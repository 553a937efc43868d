// Package declare describes values that should be seeded into a cache at load
// time, and scans them into a store.
package declare

import (
	"errors"
	"fmt"
	"time"

	"expiring-cache/internal/expiry"

	"github.com/charmbracelet/log"
)

// Common errors for declarations
var (
	// ErrAccessDenied is returned when a declaration's value cannot be read
	ErrAccessDenied = errors.New("declaration not accessible")

	// ErrMissingValue is returned when a declaration has no value to read
	ErrMissingValue = errors.New("declaration has no value")
)

// Declaration is a named value with optional key and expiration metadata.
type Declaration struct {
	// Name identifies the declaration and is the fallback key.
	Name string

	// Key overrides Name as the cache key when non-empty.
	Key string

	// Expiration is the ttl. Zero means never expire unless HasExpiration is set.
	Expiration time.Duration

	// HasExpiration marks Expiration as explicit, so that a zero ttl is kept.
	HasExpiration bool

	// Value reads the current value. It may fail; the scanner then skips it.
	Value func() (any, error)
}

// EffectiveKey returns Key, or Name when no key was given.
func (d Declaration) EffectiveKey() string {
	if d.Key != "" {
		return d.Key
	}
	return d.Name
}

// TTL returns the expiration to register the declaration with.
func (d Declaration) TTL() time.Duration {
	if !d.HasExpiration || d.Expiration < 0 {
		return expiry.Never
	}
	return d.Expiration
}

// Source enumerates declarations.
type Source interface {
	Declarations() []Declaration
}

// SourceFunc adapts a function to Source.
type SourceFunc func() []Declaration

// Declarations implements Source.
func (f SourceFunc) Declarations() []Declaration {
	return f()
}

// Sources concatenates several sources in order. Nil sources are ignored.
func Sources(srcs ...Source) Source {
	return SourceFunc(func() []Declaration {
		var out []Declaration
		for _, src := range srcs {
			if src == nil {
				continue
			}
			out = append(out, src.Declarations()...)
		}
		return out
	})
}

// Sink receives each readable declaration.
type Sink func(key string, value any, ttl time.Duration)

// Scan reads every declaration of src and hands it to sink. Declarations that
// cannot be read are logged and skipped; their errors are joined into err.
// n is the number of declarations delivered to sink.
func Scan(src Source, sink Sink, logger *log.Logger) (n int, err error) {
	if src == nil {
		return 0, nil
	}
	if logger == nil {
		logger = log.Default()
	}

	var errs []error
	for _, d := range src.Declarations() {
		key := d.EffectiveKey()
		if key == "" {
			errs = append(errs, fmt.Errorf("%w: declaration without name or key", ErrMissingValue))
			logger.Warn("skipping unnamed declaration")
			continue
		}
		if d.Value == nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingValue, d.Name))
			logger.Warn("skipping declaration", "name", d.Name, "key", key, "err", ErrMissingValue)
			continue
		}

		value, readErr := d.Value()
		if readErr != nil {
			errs = append(errs, fmt.Errorf("declaration %s: %w", d.Name, readErr))
			logger.Warn("skipping declaration", "name", d.Name, "key", key, "err", readErr)
			continue
		}

		sink(key, value, d.TTL())
		n++
	}

	logger.Debug("declarations scanned", "registered", n, "skipped", len(errs))
	return n, errors.Join(errs...)
}
