// Package config loads process configuration from a YAML file, a .env file
// and AGENTGRAPH_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/flowgraph/agentgraph/pkg/serialization"
	"github.com/flowgraph/agentgraph/pkg/validation"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTGRAPH_"

// Config holds all process configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Lock       LockConfig       `yaml:"lock"`
	Agent      AgentConfig      `yaml:"agent"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type CheckpointConfig struct {
	Driver        string        `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	DSN           string        `yaml:"dsn" validate:"required_unless=Driver memory"`
	Codec         string        `yaml:"codec" validate:"oneof=msgpack json"`
	Compression   string        `yaml:"compression" validate:"oneof=none gzip zstd"`
	EncryptionKey string        `yaml:"encryption_key" validate:"omitempty,hexadecimal,len=64"`
	TTL           time.Duration `yaml:"ttl" validate:"min=0"`
	MaxMemoryMB   int64         `yaml:"max_memory_mb" validate:"min=0"`
}

type LockConfig struct {
	Driver    string        `yaml:"driver" validate:"oneof=memory redis"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Driver redis"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl" validate:"min=0"`
}

// AgentConfig holds defaults for graph runs.
type AgentConfig struct {
	ModelName      string `yaml:"model_name" validate:"omitempty,oneof=anthropic openai"`
	RecursionLimit int    `yaml:"recursion_limit" validate:"min=0"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:    LogConfig{Level: "info", Format: "text"},
		Checkpoint: CheckpointConfig{
			Driver:      "memory",
			Codec:       "msgpack",
			Compression: "zstd",
			TTL:         24 * time.Hour,
			MaxMemoryMB: 256,
		},
		Lock:  LockConfig{Driver: "memory", Prefix: "agentgraph:", TTL: 10 * time.Minute},
		Agent: AgentConfig{ModelName: "anthropic", RecursionLimit: 25},
	}
}

// Load reads .env (when present), then the YAML file at path (when path is
// not empty), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decodeYAML(f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates. Unknown keys fail.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decodeYAML(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field rule.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c)
}

type envBinding struct {
	key string
	set func(string) error
}

func (c *Config) bindings() []envBinding {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	dur := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*dst = d
			return nil
		}
	}
	num := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	return []envBinding{
		{"ADDR", str(&c.Server.Addr)},
		{"SHUTDOWN_TIMEOUT", dur(&c.Server.ShutdownTimeout)},
		{"LOG_LEVEL", str(&c.Log.Level)},
		{"LOG_FORMAT", str(&c.Log.Format)},
		{"CHECKPOINT_DRIVER", str(&c.Checkpoint.Driver)},
		{"CHECKPOINT_DSN", str(&c.Checkpoint.DSN)},
		{"CHECKPOINT_CODEC", str(&c.Checkpoint.Codec)},
		{"CHECKPOINT_COMPRESSION", str(&c.Checkpoint.Compression)},
		{"CHECKPOINT_ENCRYPTION_KEY", str(&c.Checkpoint.EncryptionKey)},
		{"CHECKPOINT_TTL", dur(&c.Checkpoint.TTL)},
		{"LOCK_DRIVER", str(&c.Lock.Driver)},
		{"REDIS_ADDR", str(&c.Lock.RedisAddr)},
		{"LOCK_PREFIX", str(&c.Lock.Prefix)},
		{"LOCK_TTL", dur(&c.Lock.TTL)},
		{"MODEL_NAME", str(&c.Agent.ModelName)},
		{"RECURSION_LIMIT", num(&c.Agent.RecursionLimit)},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range c.bindings() {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.set(v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}

// Serializer builds the checkpoint serializer described by the config.
func (c CheckpointConfig) Serializer() (*serialization.Serializer, error) {
	var key []byte
	if c.EncryptionKey != "" {
		k, err := hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		key = k
	}
	return serialization.FromNames(c.Codec, c.Compression, key)
}
