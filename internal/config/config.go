package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"expiring-cache/internal/cache"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
)

// AppName scopes the default data directory.
const AppName = "expiring-cache"

// Snapshot backends
const (
	BackendJSON   = "json"
	BackendZstd   = "zstd"
	BackendSQLite = "sqlite"
)

// Common errors for configuration
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config locates the cache files and selects the store policies. Every field
// can be set from the environment.
type Config struct {
	Dir              string `env:"CACHE_DIR"`
	File             string `env:"CACHE_FILE" envDefault:"cache.json"`
	ConfigFile       string `env:"CACHE_CONFIG_FILE" envDefault:"cache_config.json"`
	Backend          string `env:"CACHE_BACKEND" envDefault:"json"`
	CompressionLevel int    `env:"CACHE_COMPRESSION_LEVEL" envDefault:"3"`
	ConcurrencySafe  bool   `env:"CACHE_CONCURRENCY_SAFE" envDefault:"true"`
	Declarations     string `env:"CACHE_DECLARATIONS" envDefault:"overwrite"`
	Errors           string `env:"CACHE_ERRORS" envDefault:"degrade"`
	Debug            bool   `env:"CACHE_DEBUG"`
}

// Load reads Config from the environment and fills in the default directory.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Dir == "" {
		cfg.Dir, err = DefaultDir()
		if err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// DefaultDir returns the per-user data directory for the cache.
func DefaultDir() (string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.DataDirs()
	if err != nil || len(dirs) == 0 {
		return filepath.Join(os.TempDir(), AppName), nil
	}
	return dirs[0], nil
}

// Validate checks the backend and policy names.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendJSON, BackendZstd, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Dir == "" {
		return fmt.Errorf("%w: empty cache directory", ErrInvalidConfig)
	}
	if _, err := c.DeclarationPolicy(); err != nil {
		return err
	}
	if _, err := c.ErrorPolicy(); err != nil {
		return err
	}
	return nil
}

// SnapshotPath returns the file the selected backend persists to.
func (c Config) SnapshotPath() string {
	switch c.Backend {
	case BackendZstd:
		return filepath.Join(c.Dir, c.File+".zst")
	case BackendSQLite:
		return filepath.Join(c.Dir, "cache.db")
	default:
		return filepath.Join(c.Dir, c.File)
	}
}

// CacheConfigPath returns the location of the cache config collaborator file.
func (c Config) CacheConfigPath() string {
	return filepath.Join(c.Dir, c.ConfigFile)
}

// DeclarationPolicy parses Declarations.
func (c Config) DeclarationPolicy() (cache.DeclarationPolicy, error) {
	switch c.Declarations {
	case "", "overwrite":
		return cache.DeclarationsOverwrite, nil
	case "preserve":
		return cache.DeclarationsPreservePersisted, nil
	default:
		return 0, fmt.Errorf("%w: unknown declaration policy %q", ErrInvalidConfig, c.Declarations)
	}
}

// ErrorPolicy parses Errors.
func (c Config) ErrorPolicy() (cache.ErrorPolicy, error) {
	switch c.Errors {
	case "", "degrade":
		return cache.ErrorsDegrade, nil
	case "propagate":
		return cache.ErrorsPropagate, nil
	default:
		return 0, fmt.Errorf("%w: unknown error policy %q", ErrInvalidConfig, c.Errors)
	}
}
