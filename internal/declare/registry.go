package declare

import (
	"sync"
	"time"
)

// Registry is an explicit registration table of declarations. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	decls []Declaration
}

// Option sets declaration metadata.
type Option func(*Declaration)

// WithKey sets the cache key; without it the declaration name is used.
func WithKey(key string) Option {
	return func(d *Declaration) {
		d.Key = key
	}
}

// WithExpiration sets the ttl; without it the value never expires.
func WithExpiration(ttl time.Duration) Option {
	return func(d *Declaration) {
		d.Expiration = ttl
		d.HasExpiration = true
	}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register declares a fixed value.
func (r *Registry) Register(name string, value any, opts ...Option) {
	r.RegisterFunc(name, func() (any, error) { return value, nil }, opts...)
}

// RegisterPtr declares the value behind ptr, read at scan time. A nil pointer
// is reported as an access error when scanned.
func RegisterPtr[T any](r *Registry, name string, ptr *T, opts ...Option) {
	r.RegisterFunc(name, func() (any, error) {
		if ptr == nil {
			return nil, ErrAccessDenied
		}
		return *ptr, nil
	}, opts...)
}

// RegisterFunc declares a value produced by fn at scan time.
func (r *Registry) RegisterFunc(name string, fn func() (any, error), opts ...Option) {
	d := Declaration{Name: name, Value: fn}
	for _, opt := range opts {
		opt(&d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.decls = append(r.decls, d)
}

// Len returns the number of declarations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.decls)
}

// Declarations implements Source. Declarations are returned in registration order.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Declaration, len(r.decls))
	copy(out, r.decls)
	return out
}

var _ Source = (*Registry)(nil)
