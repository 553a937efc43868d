package config

import (
	"fmt"
	"os"

	"expiring-cache/internal/cache"
	"expiring-cache/internal/database"
	"expiring-cache/internal/declare"
	"expiring-cache/internal/persist"

	"github.com/charmbracelet/log"
)

// Codec opens the snapshot codec selected by Backend. The returned close
// function releases the backend.
func (c Config) Codec() (persist.Codec, func() error, error) {
	noop := func() error { return nil }

	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return nil, noop, fmt.Errorf("failed to create cache directory: %w", err)
	}

	switch c.Backend {
	case BackendSQLite:
		db, err := database.Open(c.SnapshotPath(), c.Debug)
		if err != nil {
			return nil, noop, err
		}
		return persist.NewSQLite(db), func() error { return database.Close(db) }, nil
	case BackendZstd:
		return persist.NewJSONFile(c.SnapshotPath(), persist.WithCompression(c.CompressionLevel)), noop, nil
	default:
		return persist.NewJSONFile(c.SnapshotPath()), noop, nil
	}
}

// NewStore builds a store from c. Declarations from the cache config file are
// applied after extra.
func (c Config) NewStore(cc *CacheConfig, extra declare.Source, logger *log.Logger) (*cache.Store, func() error, error) {
	if logger == nil {
		logger = log.Default()
	}
	declPolicy, err := c.DeclarationPolicy()
	if err != nil {
		return nil, nil, err
	}
	errPolicy, err := c.ErrorPolicy()
	if err != nil {
		return nil, nil, err
	}

	codec, closeFn, err := c.Codec()
	if err != nil {
		return nil, nil, err
	}

	var fromConfig declare.Source
	if cc != nil {
		fromConfig = cc.Declarations()
	}

	store := cache.NewStore(cache.Options{
		ConcurrencySafe:   c.ConcurrencySafe,
		Codec:             codec,
		Declarations:      declare.Sources(extra, fromConfig),
		DeclarationPolicy: declPolicy,
		ErrorPolicy:       errPolicy,
		Logger:            logger.WithPrefix("cache"),
	})
	return store, closeFn, nil
}
