package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"512B", 512, false},
		{"10KB", 10 * 1024, false},
		{"50MB", 50 * 1024 * 1024, false},
		{"50mb", 50 * 1024 * 1024, false},
		{"1.5GB", 1536 * 1024 * 1024, false},
		{" 2 TB ", 2 << 40, false},
		{"abc", 0, true},
		{"-5MB", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DATA_DIR", "/var/lib/registry")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxUploadSize)
	assert.Equal(t, 4*cfg.MaxUploadSize, cfg.MaxRequestSize)
	assert.Equal(t, MetadataJSON, cfg.Metadata.Backend)
	assert.Equal(t, "/var/lib/registry/files.json", cfg.Metadata.Path)
	assert.Equal(t, "/var/lib/registry/blobs", cfg.Blobs.Dir)
	assert.Equal(t, "/var/lib/registry/jetstream", cfg.JetStreamDir())
	assert.Equal(t, 256, cfg.Broadcast.QueueSize)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	yamlDoc := `
http_port: 8080
max_upload_size: 1048576
upload_timeout: 45s
data_dir: /srv/registry
metadata:
  backend: sqlite
blobs:
  backend: s3
  s3:
    endpoint: http://localhost:9000
    bucket: uploads
broadcast:
  queue_size: 32
  ping_interval: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("S3_PREFIX", "files/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, int64(1048576), cfg.MaxUploadSize)
	assert.Equal(t, 45*time.Second, cfg.UploadTimeout)
	assert.Equal(t, MetadataSQLite, cfg.Metadata.Backend)
	assert.Equal(t, "/srv/registry/registry.db", cfg.Metadata.Path)
	assert.Equal(t, BlobS3, cfg.Blobs.Backend)
	assert.Equal(t, "uploads", cfg.Blobs.S3.Bucket)
	assert.Equal(t, "files/", cfg.Blobs.S3.Prefix)
	assert.Equal(t, 32, cfg.Broadcast.QueueSize)
	assert.Equal(t, 10*time.Second, cfg.Broadcast.PingInterval)
}

func TestLoadSizeFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("MAX_UPLOAD_SIZE", "5MB")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadSize)
	assert.Equal(t, int64(20*1024*1024), cfg.MaxRequestSize)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("UPLOAD_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "UPLOAD_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTPPort = 0 }, "invalid http port"},
		{"bad nats port", func(c *Config) { c.NATSPort = 70000 }, "invalid nats port"},
		{"privileged nats port", func(c *Config) { c.NATSPort = 80 }, "invalid nats port"},
		{"zero upload size", func(c *Config) { c.MaxUploadSize = 0 }, "max upload size"},
		{"request smaller than upload", func(c *Config) { c.MaxRequestSize = 1 }, "max request size"},
		{"unknown metadata backend", func(c *Config) { c.Metadata.Backend = "mongo" }, "unknown metadata backend"},
		{"unknown blob backend", func(c *Config) { c.Blobs.Backend = "ftp" }, "unknown blob backend"},
		{"s3 without bucket", func(c *Config) { c.Blobs.Backend = BlobS3 }, "S3_BUCKET"},
		{"zero queue", func(c *Config) { c.Broadcast.QueueSize = 0 }, "queue size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.fillDerived()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
