// Package serialization turns checkpoint state into bytes and back.
// The pipeline is codec -> compression -> optional AES-GCM, and the same
// Serializer must be used on both sides.
package serialization

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec interface for serialization
// PRINCIPLES:
// - ISP: Simple interface with ≤5 methods
// - SRP: Single responsibility for serialization
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
	Name() string
}

// CompressionType represents compression algorithms
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionZstd CompressionType = "zstd"
)

var (
	ErrUnknownCodec       = errors.New("unknown codec")
	ErrUnknownCompression = errors.New("unknown compression")
	ErrInvalidKey         = errors.New("encryption key must be 16, 24 or 32 bytes")
	ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce")
)

// Config holds serialization settings
type Config struct {
	Codec       Codec
	Compression CompressionType
	EncryptKey  []byte
}

// Serializer provides complete serialization with compression and encryption.
// It is safe for concurrent use.
type Serializer struct {
	codec       Codec
	compression CompressionType
	aead        cipher.AEAD
	zenc        *zstd.Encoder
	zdec        *zstd.Decoder
}

// New validates cfg and builds a serializer. A nil codec selects msgpack.
func New(cfg Config) (*Serializer, error) {
	if cfg.Codec == nil {
		cfg.Codec = NewMsgPackCodec()
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}

	s := &Serializer{codec: cfg.Codec, compression: cfg.Compression}

	switch cfg.Compression {
	case CompressionNone, CompressionGzip:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		s.zenc, s.zdec = enc, dec
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, cfg.Compression)
	}

	if len(cfg.EncryptKey) > 0 {
		block, err := aes.NewCipher(cfg.EncryptKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		s.aead = gcm
	}
	return s, nil
}

// FromNames builds a serializer from configuration strings.
func FromNames(codec, compression string, key []byte) (*Serializer, error) {
	c, err := CodecByName(codec)
	if err != nil {
		return nil, err
	}
	return New(Config{Codec: c, Compression: CompressionType(compression), EncryptKey: key})
}

// CodecByName returns the codec registered under name
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "msgpack":
		return NewMsgPackCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}

// DefaultSerializer creates a serializer with sensible defaults: msgpack + zstd.
func DefaultSerializer() *Serializer {
	s, err := New(Config{Codec: NewMsgPackCodec(), Compression: CompressionZstd})
	if err != nil {
		panic(err)
	}
	return s
}

// Codec returns the underlying codec
func (s *Serializer) Codec() Codec { return s.codec }

// Compression returns the configured compression
func (s *Serializer) Compression() CompressionType { return s.compression }

// Serialize encodes, compresses, and encrypts data
func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	data, err := s.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("codec encoding failed: %w", err)
	}

	data, err = s.compress(data)
	if err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}

	if s.aead != nil {
		data, err = s.seal(data)
		if err != nil {
			return nil, fmt.Errorf("encryption failed: %w", err)
		}
	}
	return data, nil
}

// Deserialize decrypts, decompresses, and decodes data
func (s *Serializer) Deserialize(data []byte, v interface{}) error {
	var err error
	if s.aead != nil {
		data, err = s.open(data)
		if err != nil {
			return fmt.Errorf("decryption failed: %w", err)
		}
	}

	data, err = s.decompress(data)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}

	if err := s.codec.Decode(data, v); err != nil {
		return fmt.Errorf("codec decoding failed: %w", err)
	}
	return nil
}

func (s *Serializer) compress(data []byte) ([]byte, error) {
	switch s.compression {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return s.zenc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func (s *Serializer) decompress(data []byte) ([]byte, error) {
	switch s.compression {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZstd:
		return s.zdec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}

// seal encrypts data with a random nonce prepended to the ciphertext
func (s *Serializer) seal(data []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, data, nil), nil
}

func (s *Serializer) open(data []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, ErrCiphertextTooShort
	}
	return s.aead.Open(nil, data[:n], data[n:], nil)
}

// JSONCodec implements JSON serialization
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) { return json.Marshal(v) }

// Decode uses json.Number so integers survive a round trip without becoming float64.
func (JSONCodec) Decode(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (JSONCodec) Name() string { return "json" }

// MsgPackCodec implements MessagePack serialization. Struct fields are keyed
// by their json tags so both codecs agree on field names.
type MsgPackCodec struct{}

func (MsgPackCodec) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgPackCodec) Decode(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

func (MsgPackCodec) Name() string { return "msgpack" }

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() Codec { return JSONCodec{} }

// NewMsgPackCodec creates a new MessagePack codec
func NewMsgPackCodec() Codec { return MsgPackCodec{} }
