package cache

import (
	"expiring-cache/internal/declare"
	"expiring-cache/internal/persist"

	"github.com/charmbracelet/log"
)

// DeclarationPolicy decides what happens when a declaration targets a key that
// was loaded from the snapshot.
type DeclarationPolicy int

const (
	// DeclarationsOverwrite always stores the declared value, discarding the
	// persisted one.
	DeclarationsOverwrite DeclarationPolicy = iota

	// DeclarationsPreservePersisted only seeds keys that are absent or expired
	// after the snapshot was loaded.
	DeclarationsPreservePersisted
)

// String returns the policy name as used in configuration.
func (p DeclarationPolicy) String() string {
	switch p {
	case DeclarationsOverwrite:
		return "overwrite"
	case DeclarationsPreservePersisted:
		return "preserve"
	default:
		return "unknown"
	}
}

// ErrorPolicy decides how Load and Flush report failures.
type ErrorPolicy int

const (
	// ErrorsDegrade logs failures and returns nil: a failed load behaves like
	// an empty snapshot, a failed flush leaves the snapshot stale.
	ErrorsDegrade ErrorPolicy = iota

	// ErrorsPropagate logs failures and also returns them. The in-memory
	// state is the same as under ErrorsDegrade.
	ErrorsPropagate
)

// String returns the policy name as used in configuration.
func (p ErrorPolicy) String() string {
	switch p {
	case ErrorsDegrade:
		return "degrade"
	case ErrorsPropagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// Options controls construction of a Store.
type Options struct {
	// ConcurrencySafe controls whether operations are guarded by a RWMutex.
	// If false, the store is not safe for concurrent use: its two maps are
	// updated in separate steps and GetOrInsert is a read followed by a write.
	ConcurrencySafe bool

	// Codec persists snapshots. A nil codec makes Load and Flush in-memory only.
	Codec persist.Codec

	// Declarations seed the store on every Load, after the snapshot.
	Declarations declare.Source

	DeclarationPolicy DeclarationPolicy
	ErrorPolicy       ErrorPolicy

	// Logger defaults to log.Default().
	Logger *log.Logger
}
