package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDocument struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags,omitempty"`
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(CompressionConfig{})
	require.NoError(t, err)

	doc := testDocument{ID: "doc-1", Title: "Getting Started", Tags: []string{"onboarding"}}
	payload, saved, err := codec.Encode(doc)
	require.NoError(t, err)
	assert.Zero(t, saved)

	var decoded testDocument
	require.NoError(t, codec.Decode(payload, &decoded))
	assert.Equal(t, doc, decoded)
}

func TestCodecSerializationFailure(t *testing.T) {
	codec, err := NewCodec(CompressionConfig{})
	require.NoError(t, err)

	_, _, err = codec.Encode(make(chan int))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestCodecDeserializationFailure(t *testing.T) {
	codec, err := NewCodec(CompressionConfig{})
	require.NoError(t, err)

	var out testDocument
	err = codec.Decode([]byte("{not json"), &out)
	assert.ErrorIs(t, err, ErrDeserializationFailed)
}

func TestCodecCompressionThreshold(t *testing.T) {
	codec, err := NewCodec(CompressionConfig{
		Enabled:      true,
		MinSizeBytes: 256,
		Algorithm:    CompressionGzip,
	})
	require.NoError(t, err)

	t.Run("small payload stays raw", func(t *testing.T) {
		payload, saved, err := codec.Encode(testDocument{ID: "doc-1"})
		require.NoError(t, err)
		assert.Zero(t, saved)
		assert.False(t, isGzipCompressed(payload))
	})

	t.Run("large payload is compressed", func(t *testing.T) {
		doc := testDocument{ID: "doc-1", Body: strings.Repeat("knowledge base article ", 200)}
		payload, saved, err := codec.Encode(doc)
		require.NoError(t, err)
		assert.Positive(t, saved)
		assert.True(t, isGzipCompressed(payload))

		var decoded testDocument
		require.NoError(t, codec.Decode(payload, &decoded))
		assert.Equal(t, doc, decoded)
	})
}

func TestCodecZstd(t *testing.T) {
	codec, err := NewCodec(CompressionConfig{
		Enabled:      true,
		MinSizeBytes: 64,
		Algorithm:    CompressionZstd,
	})
	require.NoError(t, err)

	doc := testDocument{ID: "doc-1", Body: strings.Repeat("searchable content ", 100)}
	payload, saved, err := codec.Encode(doc)
	require.NoError(t, err)
	assert.Positive(t, saved)
	assert.True(t, isZstdCompressed(payload))

	var decoded testDocument
	require.NoError(t, codec.Decode(payload, &decoded))
	assert.Equal(t, doc, decoded)
}

func TestCodecDecodesForeignCompression(t *testing.T) {
	// Payloads written under one compression configuration must remain
	// readable after the configuration changes.
	gzipCodec, err := NewCodec(CompressionConfig{Enabled: true, MinSizeBytes: 64, Algorithm: CompressionGzip})
	require.NoError(t, err)
	plainCodec, err := NewCodec(CompressionConfig{})
	require.NoError(t, err)

	doc := testDocument{ID: "doc-1", Body: strings.Repeat("mixed deployment ", 100)}
	payload, _, err := gzipCodec.Encode(doc)
	require.NoError(t, err)

	var decoded testDocument
	require.NoError(t, plainCodec.Decode(payload, &decoded))
	assert.Equal(t, doc, decoded)
}
