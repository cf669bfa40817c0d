// Package config loads and validates gate configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/ioguard/pkg/audio"
	"github.com/dshills/ioguard/pkg/network"
	"github.com/dshills/ioguard/pkg/policy"
	"github.com/dshills/ioguard/pkg/serialization"
	"github.com/dshills/ioguard/pkg/validation"
)

// FileConfig configures the file path validator.
type FileConfig struct {
	// BasePath is the directory reads and writes are confined to
	BasePath string `yaml:"base_path"`

	// MaxFileSize in bytes; zero means the default
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`

	// MaxPathLength in bytes; zero means the default
	MaxPathLength int `yaml:"max_path_length,omitempty"`

	// BlockedExtensions replaces the default write denylist when non-empty
	BlockedExtensions []string `yaml:"blocked_extensions,omitempty"`
}

// NetworkConfig configures the endpoint validator.
type NetworkConfig struct {
	// MaxPayloadSize in bytes; zero means the default
	MaxPayloadSize int `yaml:"max_payload_size,omitempty"`

	// BlockedPorts replaces the default blocked port list when non-empty
	BlockedPorts []int `yaml:"blocked_ports,omitempty"`

	// BlockedHosts replaces the default blocked host list when non-empty
	BlockedHosts []string `yaml:"blocked_hosts,omitempty"`
}

// AudioConfig configures the audio buffer validator.
type AudioConfig struct {
	// MaxBufferSize in bytes; zero means the default
	MaxBufferSize int `yaml:"max_buffer_size,omitempty"`

	// MaxConcurrent buffer slots; zero means the default
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`
}

// SerializationConfig configures the serialization guard.
type SerializationConfig struct {
	// MaxSize in bytes; zero means the default
	MaxSize int `yaml:"max_size,omitempty"`
}

// AuditConfig configures verdict recording.
type AuditConfig struct {
	// DatabasePath overrides the default ~/.ioguard/ioguard.db location
	DatabasePath string `yaml:"database_path,omitempty"`

	// RecentRejections sizes the in-memory rejection ring; zero means the default
	RecentRejections int `yaml:"recent_rejections,omitempty"`
}

// GateConfig is the root configuration document.
type GateConfig struct {
	File          FileConfig          `yaml:"file"`
	Network       NetworkConfig       `yaml:"network"`
	Audio         AudioConfig         `yaml:"audio"`
	Serialization SerializationConfig `yaml:"serialization"`
	Audit         AuditConfig         `yaml:"audit"`

	// Rules are evaluated in order; the first matching rule denies the event
	Rules []policy.Rule `yaml:"rules,omitempty"`
}

// Default returns a configuration with every limit at its default, confined
// to basePath.
func Default(basePath string) GateConfig {
	return GateConfig{
		File: FileConfig{
			BasePath:      basePath,
			MaxFileSize:   validation.DefaultMaxFileSize,
			MaxPathLength: validation.DefaultMaxPathLen,
		},
		Network: NetworkConfig{
			MaxPayloadSize: network.DefaultMaxPayloadSize,
			BlockedPorts:   append([]int(nil), network.DefaultBlockedPorts...),
			BlockedHosts:   append([]string(nil), network.DefaultBlockedHosts...),
		},
		Audio: AudioConfig{
			MaxBufferSize: audio.DefaultMaxBufferSize,
			MaxConcurrent: audio.DefaultMaxConcurrent,
		},
		Serialization: SerializationConfig{
			MaxSize: serialization.DefaultMaxSerializedSize,
		},
	}
}

// ApplyDefaults fills zero-valued limits and empty denylists with the
// package defaults, so a partial configuration document behaves the same
// as Default with its explicit fields overridden.
func (c *GateConfig) ApplyDefaults() {
	if c.File.MaxFileSize == 0 {
		c.File.MaxFileSize = validation.DefaultMaxFileSize
	}
	if c.File.MaxPathLength == 0 {
		c.File.MaxPathLength = validation.DefaultMaxPathLen
	}
	if c.Network.MaxPayloadSize == 0 {
		c.Network.MaxPayloadSize = network.DefaultMaxPayloadSize
	}
	if len(c.Network.BlockedPorts) == 0 {
		c.Network.BlockedPorts = append([]int(nil), network.DefaultBlockedPorts...)
	}
	if len(c.Network.BlockedHosts) == 0 {
		c.Network.BlockedHosts = append([]string(nil), network.DefaultBlockedHosts...)
	}
	if c.Audio.MaxBufferSize == 0 {
		c.Audio.MaxBufferSize = audio.DefaultMaxBufferSize
	}
	if c.Audio.MaxConcurrent == 0 {
		c.Audio.MaxConcurrent = audio.DefaultMaxConcurrent
	}
	if c.Serialization.MaxSize == 0 {
		c.Serialization.MaxSize = serialization.DefaultMaxSerializedSize
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*GateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*GateConfig, error) {
	var cfg GateConfig
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for caller errors. Zero-valued limits
// are allowed; they fall back to defaults at construction time.
func (c *GateConfig) Validate() error {
	if c.File.BasePath == "" {
		return errors.New("config: file.base_path is required")
	}
	if c.File.MaxFileSize < 0 {
		return fmt.Errorf("config: file.max_file_size cannot be negative: %d", c.File.MaxFileSize)
	}
	if c.File.MaxPathLength < 0 {
		return fmt.Errorf("config: file.max_path_length cannot be negative: %d", c.File.MaxPathLength)
	}
	if c.Network.MaxPayloadSize < 0 {
		return fmt.Errorf("config: network.max_payload_size cannot be negative: %d", c.Network.MaxPayloadSize)
	}
	for _, port := range c.Network.BlockedPorts {
		if port < 1 || port > 65535 {
			return fmt.Errorf("config: network.blocked_ports entry out of range: %d", port)
		}
	}
	if c.Audio.MaxBufferSize < 0 {
		return fmt.Errorf("config: audio.max_buffer_size cannot be negative: %d", c.Audio.MaxBufferSize)
	}
	if c.Audio.MaxConcurrent < 0 {
		return fmt.Errorf("config: audio.max_concurrent cannot be negative: %d", c.Audio.MaxConcurrent)
	}
	if c.Serialization.MaxSize < 0 {
		return fmt.Errorf("config: serialization.max_size cannot be negative: %d", c.Serialization.MaxSize)
	}
	if c.Audit.RecentRejections < 0 {
		return fmt.Errorf("config: audit.recent_rejections cannot be negative: %d", c.Audit.RecentRejections)
	}
	for _, ext := range c.File.BlockedExtensions {
		if strings.TrimSpace(ext) == "" {
			return errors.New("config: file.blocked_extensions contains an empty entry")
		}
	}

	// Rule expressions are checked by compiling them; a config that loads
	// is a config whose rules run.
	if _, err := policy.NewEngine(c.Rules); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
