package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	t.Run("rejects empty namespace", func(t *testing.T) {
		_, err := NewKey("", "doc-1")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewKey("documents", "")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("applies default version", func(t *testing.T) {
		key, err := NewKey("documents", "doc-1")
		require.NoError(t, err)
		assert.Equal(t, DefaultVersion, key.Version())
		assert.Equal(t, "documents:doc-1:v1.0:"+tagDigest(nil), key.Canonical())
	})

	t.Run("custom version", func(t *testing.T) {
		key, err := NewKey("documents", "doc-1", WithVersion("2"))
		require.NoError(t, err)
		assert.Contains(t, key.Canonical(), ":v2:")
	})
}

func TestKeyCanonicalTagOrder(t *testing.T) {
	a, err := NewKey("documents", "doc-1", WithTags("team-platform", "project-alpha"))
	require.NoError(t, err)
	b, err := NewKey("documents", "doc-1", WithTags("project-alpha", "team-platform"))
	require.NoError(t, err)

	// Tag order must not influence identity
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, []string{"project-alpha", "team-platform"}, a.Tags())
}

func TestKeyCanonicalDistinguishes(t *testing.T) {
	base, err := NewKey("documents", "doc-1")
	require.NoError(t, err)

	tagged, err := NewKey("documents", "doc-1", WithTags("project-alpha"))
	require.NoError(t, err)

	versioned, err := NewKey("documents", "doc-1", WithVersion("2"))
	require.NoError(t, err)

	otherNS, err := NewKey("search", "doc-1")
	require.NoError(t, err)

	canonicals := map[string]bool{
		base.Canonical():      true,
		tagged.Canonical():    true,
		versioned.Canonical(): true,
		otherNS.Canonical():   true,
	}
	assert.Len(t, canonicals, 4)
}

func TestKeyTagsDeduped(t *testing.T) {
	key, err := NewKey("documents", "doc-1", WithTags("a", "b", "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, key.Tags())
}

func TestKeyTagsCopy(t *testing.T) {
	key, err := NewKey("documents", "doc-1", WithTags("a", "b"))
	require.NoError(t, err)

	tags := key.Tags()
	tags[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, key.Tags())
}

func TestKeyIsZero(t *testing.T) {
	var zero Key
	assert.True(t, zero.IsZero())

	key, err := NewKey("documents", "doc-1")
	require.NoError(t, err)
	assert.False(t, key.IsZero())
}
