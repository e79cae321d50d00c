package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DefaultVersion is the key version used when none is supplied.
const DefaultVersion = "1.0"

// Key identifies a cache entry. It is immutable once constructed; tags are
// copied in and sorted so that canonicalization is deterministic regardless
// of insertion order.
type Key struct {
	namespace string
	name      string
	version   string
	tags      []string
	canonical string
}

// KeyOption customizes key construction
type KeyOption func(*Key)

// WithVersion overrides the default key version
func WithVersion(version string) KeyOption {
	return func(k *Key) {
		if version != "" {
			k.version = version
		}
	}
}

// WithTags attaches invalidation tags to the key
func WithTags(tags ...string) KeyOption {
	return func(k *Key) {
		k.tags = append(k.tags, tags...)
	}
}

// NewKey constructs a cache key. Namespace and name must be non-empty.
func NewKey(namespace, name string, opts ...KeyOption) (Key, error) {
	if namespace == "" {
		return Key{}, fmt.Errorf("%w: namespace is empty", ErrInvalidKey)
	}
	if name == "" {
		return Key{}, fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}

	k := Key{
		namespace: namespace,
		name:      name,
		version:   DefaultVersion,
	}
	for _, opt := range opts {
		opt(&k)
	}

	sort.Strings(k.tags)
	k.tags = dedupe(k.tags)
	k.canonical = fmt.Sprintf("%s:%s:v%s:%s", k.namespace, k.name, k.version, tagDigest(k.tags))

	return k, nil
}

// Namespace returns the key's namespace
func (k Key) Namespace() string { return k.namespace }

// Name returns the key's name within its namespace
func (k Key) Name() string { return k.name }

// Version returns the key's version
func (k Key) Version() string { return k.version }

// Tags returns a copy of the key's sorted tags
func (k Key) Tags() []string {
	if len(k.tags) == 0 {
		return nil
	}
	out := make([]string, len(k.tags))
	copy(out, k.tags)
	return out
}

// Canonical returns the deterministic string form of the key. It is the
// sole lookup identity used by every tier's storage index.
func (k Key) Canonical() string { return k.canonical }

// String implements fmt.Stringer
func (k Key) String() string { return k.canonical }

// IsZero reports whether the key was constructed via NewKey
func (k Key) IsZero() bool { return k.canonical == "" }

// tagDigest returns the first 8 hex chars of the sha256 of the sorted,
// comma-joined tags. Tags must already be sorted.
func tagDigest(tags []string) string {
	sum := sha256.Sum256([]byte(strings.Join(tags, ",")))
	return hex.EncodeToString(sum[:])[:8]
}

func dedupe(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, t := range sorted[1:] {
		if t != out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}
