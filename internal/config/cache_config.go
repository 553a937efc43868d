package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"expiring-cache/internal/declare"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CacheConfig is the read-only settings file that sits beside the snapshot.
// Values can be overridden with CACHE_CONFIG_<NAME> environment variables.
type CacheConfig struct {
	v      *viper.Viper
	path   string
	exists bool
}

// declarationSpec is one entry of the "declarations" list.
type declarationSpec struct {
	Name       string `mapstructure:"name"`
	Key        string `mapstructure:"key"`
	TTL        string `mapstructure:"ttl"`
	Expiration *int64 `mapstructure:"expiration"` // ms, -1 for never
	Value      any    `mapstructure:"value"`
}

// LoadCacheConfig reads the JSON file at path. A missing file is an empty config.
func LoadCacheConfig(path string) (*CacheConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("cache_config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cc := &CacheConfig{v: v, path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return cc, nil
	}
	if err := v.ReadInConfig(); err != nil {
		return cc, fmt.Errorf("failed to read cache config: %w", err)
	}
	cc.exists = true
	return cc, nil
}

// Path returns the file the config was loaded from.
func (c *CacheConfig) Path() string {
	return c.path
}

// GetLong returns the integer stored under name, or 0 when unset. Nested keys
// use dots, e.g. "limits.max".
func (c *CacheConfig) GetLong(name string) int64 {
	return c.v.GetInt64(name)
}

// GetString returns the string stored under name.
func (c *CacheConfig) GetString(name string) string {
	return c.v.GetString(name)
}

// IsSet reports whether name has a value.
func (c *CacheConfig) IsSet(name string) bool {
	return c.v.IsSet(name)
}

// Map returns every setting. Keys are lower-cased.
func (c *CacheConfig) Map() map[string]any {
	return c.v.AllSettings()
}

// Watch re-reads the file whenever it changes and calls fn afterwards.
func (c *CacheConfig) Watch(fn func(fsnotify.Event)) error {
	if !c.exists {
		return fmt.Errorf("cannot watch missing cache config %s", c.path)
	}
	c.v.OnConfigChange(fn)
	c.v.WatchConfig()
	return nil
}

// Declarations exposes the "declarations" list as a declaration source:
//
//	{"declarations": [{"name": "motd", "key": "greeting", "ttl": "1h", "value": "hi"}]}
//
// ttl accepts Go durations or "never"; expiration accepts milliseconds.
func (c *CacheConfig) Declarations() declare.Source {
	return declare.SourceFunc(func() []declare.Declaration {
		var specs []declarationSpec
		if err := c.v.UnmarshalKey("declarations", &specs); err != nil {
			return []declare.Declaration{{
				Name:  "declarations",
				Value: failed(fmt.Errorf("%w: %v", declare.ErrAccessDenied, err)),
			}}
		}

		decls := make([]declare.Declaration, 0, len(specs))
		for _, spec := range specs {
			decls = append(decls, spec.declaration())
		}
		return decls
	})
}

func (s declarationSpec) declaration() declare.Declaration {
	d := declare.Declaration{Name: s.Name, Key: s.Key}
	value := s.Value
	d.Value = func() (any, error) { return value, nil }

	switch {
	case s.TTL != "" && s.TTL != "never":
		ttl, err := time.ParseDuration(s.TTL)
		if err != nil {
			d.Value = failed(fmt.Errorf("invalid ttl %q: %w", s.TTL, err))
			return d
		}
		d.Expiration, d.HasExpiration = ttl, true
	case s.Expiration != nil && *s.Expiration >= 0:
		d.Expiration = time.Duration(*s.Expiration) * time.Millisecond
		d.HasExpiration = true
	}
	return d
}

func failed(err error) func() (any, error) {
	return func() (any, error) { return nil, err }
}
