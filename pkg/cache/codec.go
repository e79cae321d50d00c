package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressionAlgo selects the compression codec for large payloads
type CompressionAlgo string

// Supported compression algorithms
const (
	CompressionGzip CompressionAlgo = "gzip"
	CompressionZstd CompressionAlgo = "zstd"
)

// Codec serializes cache values to the payload bytes stored by every tier.
// Values are JSON-encoded; payloads at or above the configured minimum size
// are compressed. Decoding detects compression from magic bytes, so mixed
// compressed and raw payloads coexist in the same store.
type Codec struct {
	compressionEnabled bool
	minSizeBytes       int
	algo               CompressionAlgo

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
}

// NewCodec creates a codec from the compression configuration
func NewCodec(cfg CompressionConfig) (*Codec, error) {
	c := &Codec{
		compressionEnabled: cfg.Enabled,
		minSizeBytes:       cfg.MinSizeBytes,
		algo:               cfg.Algorithm,
	}

	if cfg.Enabled && cfg.Algorithm == CompressionZstd {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		c.zstdEncoder = encoder
		c.zstdDecoder = decoder
	}

	return c, nil
}

// Encode serializes a value into payload bytes. Compression is applied only
// when it actually shrinks the payload; the second return value is the
// number of bytes saved, zero when the payload was stored raw.
func (c *Codec) Encode(value interface{}) ([]byte, int, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	if !c.compressionEnabled || len(data) < c.minSizeBytes {
		return data, 0, nil
	}

	compressed, err := c.compress(data)
	if err != nil {
		// Compression failure is not a data-loss condition; store raw
		return data, 0, nil
	}
	if len(compressed) >= len(data) {
		return data, 0, nil
	}
	return compressed, len(data) - len(compressed), nil
}

// Decode deserializes payload bytes into value
func (c *Codec) Decode(payload []byte, value interface{}) error {
	data := payload

	if isGzipCompressed(data) {
		decompressed, err := decompressGzip(data)
		if err != nil {
			return fmt.Errorf("%w: gzip: %v", ErrDeserializationFailed, err)
		}
		data = decompressed
	} else if isZstdCompressed(data) {
		decoder := c.zstdDecoder
		if decoder == nil {
			d, err := zstd.NewReader(nil)
			if err != nil {
				return fmt.Errorf("%w: zstd: %v", ErrDeserializationFailed, err)
			}
			decoder = d
			defer d.Close()
		}
		decompressed, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("%w: zstd: %v", ErrDeserializationFailed, err)
		}
		data = decompressed
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}
	return nil
}

func (c *Codec) compress(data []byte) ([]byte, error) {
	switch c.algo {
	case CompressionZstd:
		if c.zstdEncoder == nil {
			return nil, fmt.Errorf("zstd encoder not initialized")
		}
		return c.zstdEncoder.EncodeAll(data, nil), nil
	default:
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return nil, err
		}
		if err := gz.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

func decompressGzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gz.Close() }()
	return io.ReadAll(gz)
}

// isGzipCompressed checks for the gzip magic header
func isGzipCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// isZstdCompressed checks for the zstd magic header
func isZstdCompressed(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd
}
