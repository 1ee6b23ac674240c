// Package config loads the YAML configuration of the entitydb CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid config")

// Config is the CLI configuration.
type Config struct {
	Dir        string        `yaml:"dir"`
	LogLevel   string        `yaml:"log_level"`
	LogFormat  string        `yaml:"log_format"`
	Durability string        `yaml:"durability"`
	FileSize   int64         `yaml:"file_size"`
	Blobs      BlobConfig    `yaml:"blobs"`
	Repair     RepairConfig  `yaml:"repair"`
	Backup     BackupConfig  `yaml:"backup"`
	Limits     LimitsConfig  `yaml:"limits"`
	Objects    *ObjectConfig `yaml:"objects,omitempty"`
}

// BlobConfig configures the blob vault.
type BlobConfig struct {
	Compression  string `yaml:"compression"`
	SweepRange   int64  `yaml:"sweep_range"`
	InPlaceLimit int    `yaml:"in_place_limit"`
}

// RepairConfig configures repair runs.
type RepairConfig struct {
	OnOpen           bool `yaml:"on_open"`
	Full             bool `yaml:"full"`
	BatchSize        int  `yaml:"batch_size"`
	ProgressInterval int  `yaml:"progress_interval"`
}

// BackupConfig configures backups.
type BackupConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// LimitsConfig bounds the resources of maintenance work.
type LimitsConfig struct {
	MemoryBytes     int64 `yaml:"memory_bytes"`
	IOBytesPerSec   int64 `yaml:"io_bytes_per_sec"`
	RowsPerSec      int64 `yaml:"rows_per_sec"`
	MaxBackgroundOp int64 `yaml:"max_background_ops"`
}

// ObjectConfig selects an object store for blob content.
type ObjectConfig struct {
	// Kind is one of "local", "minio" or "s3".
	Kind      string `yaml:"kind"`
	Root      string `yaml:"root"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Dir:        "./data",
		LogLevel:   "info",
		LogFormat:  "text",
		Durability: "sync",
		FileSize:   8 << 20,
		Blobs: BlobConfig{
			Compression:  "none",
			SweepRange:   10_000,
			InPlaceLimit: 256,
		},
		Repair: RepairConfig{
			OnOpen:           true,
			BatchSize:        100_000,
			ProgressInterval: 10_000,
		},
		Backup: BackupConfig{Parallelism: 4},
	}
}

// Load reads the configuration at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a YAML configuration over the defaults and validates it.
// Unknown fields are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: must be text or json", c.LogFormat))
	}
	switch c.Durability {
	case "sync", "async":
	default:
		errs = append(errs, fmt.Errorf("durability %q: must be sync or async", c.Durability))
	}
	if c.FileSize <= 0 {
		errs = append(errs, fmt.Errorf("file_size must be positive, got %d", c.FileSize))
	}
	switch c.Blobs.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("blobs.compression %q: must be none, lz4 or zstd", c.Blobs.Compression))
	}
	if c.Blobs.InPlaceLimit < 0 {
		errs = append(errs, errors.New("blobs.in_place_limit must not be negative"))
	}
	if c.Repair.BatchSize <= 0 {
		errs = append(errs, errors.New("repair.batch_size must be positive"))
	}
	if c.Backup.Parallelism <= 0 {
		errs = append(errs, errors.New("backup.parallelism must be positive"))
	}
	if o := c.Objects; o != nil {
		switch o.Kind {
		case "local":
			if o.Root == "" {
				errs = append(errs, errors.New("objects.root is required for local"))
			}
		case "minio":
			if o.Endpoint == "" || o.Bucket == "" {
				errs = append(errs, errors.New("objects.endpoint and objects.bucket are required for minio"))
			}
		case "s3":
			if o.Bucket == "" {
				errs = append(errs, errors.New("objects.bucket is required for s3"))
			}
		default:
			errs = append(errs, fmt.Errorf("objects.kind %q: must be local, minio or s3", o.Kind))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log_level %q: %w", s, err)
	}
	return l, nil
}
