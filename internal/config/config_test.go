package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
dir: /var/lib/entitydb
log_level: debug
durability: async
blobs:
  compression: lz4
repair:
  full: true
objects:
  kind: minio
  endpoint: localhost:9000
  bucket: blobs
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/entitydb", cfg.Dir)
	assert.Equal(t, "async", cfg.Durability)
	assert.Equal(t, "lz4", cfg.Blobs.Compression)
	assert.True(t, cfg.Repair.Full)
	assert.True(t, cfg.Repair.OnOpen, "unset fields keep their defaults")
	assert.Equal(t, 100_000, cfg.Repair.BatchSize)
	require.NotNil(t, cfg.Objects)
	assert.Equal(t, "blobs", cfg.Objects.Bucket)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("compresion: zstd\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compresion")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty dir", func(c *Config) { c.Dir = "" }, "dir"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad durability", func(c *Config) { c.Durability = "maybe" }, "durability"},
		{"file size", func(c *Config) { c.FileSize = 0 }, "file_size"},
		{"compression", func(c *Config) { c.Blobs.Compression = "gzip" }, "compression"},
		{"batch size", func(c *Config) { c.Repair.BatchSize = 0 }, "batch_size"},
		{"parallelism", func(c *Config) { c.Backup.Parallelism = -1 }, "parallelism"},
		{"object kind", func(c *Config) { c.Objects = &ObjectConfig{Kind: "ftp"} }, "objects.kind"},
		{"s3 bucket", func(c *Config) { c.Objects = &ObjectConfig{Kind: "s3"} }, "objects.bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entitydb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	level, err := ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
