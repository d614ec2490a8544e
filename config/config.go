package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Metadata and blob backend names.
const (
	MetadataJSON   = "json"
	MetadataSQLite = "sqlite"

	BlobDisk      = "disk"
	BlobJetStream = "jetstream"
	BlobS3        = "s3"
)

const defaultConfigFile = "config/registry.yaml"

// MetadataConfig selects where file records are persisted.
type MetadataConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// S3Config holds settings for an S3 compatible blob backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

// BlobConfig selects where file contents are stored.
type BlobConfig struct {
	Backend           string   `yaml:"backend"`
	Dir               string   `yaml:"dir"`
	JetStreamBucket   string   `yaml:"jetstream_bucket"`
	JetStreamMaxBytes int64    `yaml:"jetstream_max_bytes"`
	S3                S3Config `yaml:"s3"`
}

// BroadcastConfig tunes per-session delivery.
type BroadcastConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Config is the root configuration of the registry server.
type Config struct {
	HTTPPort           int             `yaml:"http_port"`
	NATSPort           int             `yaml:"nats_port"`
	MaxUploadSize      int64           `yaml:"max_upload_size"`
	MaxRequestSize     int64           `yaml:"max_request_size"`
	UploadTimeout      time.Duration   `yaml:"upload_timeout"`
	ShutdownTimeout    time.Duration   `yaml:"shutdown_timeout"`
	CORSAllowedOrigins string          `yaml:"cors_allowed_origins"`
	DataDir            string          `yaml:"data_dir"`
	Metadata           MetadataConfig  `yaml:"metadata"`
	Blobs              BlobConfig      `yaml:"blobs"`
	Broadcast          BroadcastConfig `yaml:"broadcast"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPPort:           3000,
		NATSPort:           4222,
		MaxUploadSize:      50 * 1024 * 1024,
		UploadTimeout:      2 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
		CORSAllowedOrigins: "*",
		DataDir:            "./data",
		Metadata: MetadataConfig{
			Backend: MetadataJSON,
		},
		Blobs: BlobConfig{
			Backend:           BlobDisk,
			JetStreamBucket:   "registry-files",
			JetStreamMaxBytes: 10 * 1024 * 1024 * 1024,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Broadcast: BroadcastConfig{
			QueueSize:    256,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads .env, the optional YAML file named by CONFIG_FILE and then
// environment overrides, fills derived defaults and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := Default()

	path := getEnv("CONFIG_FILE", defaultConfigFile)
	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.NATSPort = getEnvInt("NATS_PORT", c.NATSPort)
	c.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)

	var err error
	if c.MaxUploadSize, err = getEnvSize("MAX_UPLOAD_SIZE", c.MaxUploadSize); err != nil {
		return err
	}
	if c.MaxRequestSize, err = getEnvSize("MAX_REQUEST_SIZE", c.MaxRequestSize); err != nil {
		return err
	}
	if c.UploadTimeout, err = getEnvDuration("UPLOAD_TIMEOUT", c.UploadTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}

	c.Metadata.Backend = getEnv("METADATA_BACKEND", c.Metadata.Backend)
	c.Metadata.Path = getEnv("METADATA_PATH", c.Metadata.Path)

	c.Blobs.Backend = getEnv("BLOB_BACKEND", c.Blobs.Backend)
	c.Blobs.Dir = getEnv("BLOB_DIR", c.Blobs.Dir)
	c.Blobs.JetStreamBucket = getEnv("JETSTREAM_BUCKET", c.Blobs.JetStreamBucket)
	c.Blobs.S3.Endpoint = getEnv("S3_ENDPOINT", c.Blobs.S3.Endpoint)
	c.Blobs.S3.Region = getEnv("S3_REGION", c.Blobs.S3.Region)
	c.Blobs.S3.Bucket = getEnv("S3_BUCKET", c.Blobs.S3.Bucket)
	c.Blobs.S3.AccessKey = getEnv("S3_ACCESS_KEY", c.Blobs.S3.AccessKey)
	c.Blobs.S3.SecretKey = getEnv("S3_SECRET_KEY", c.Blobs.S3.SecretKey)
	c.Blobs.S3.Prefix = getEnv("S3_PREFIX", c.Blobs.S3.Prefix)

	c.Broadcast.QueueSize = getEnvInt("SESSION_QUEUE_SIZE", c.Broadcast.QueueSize)
	return nil
}

// fillDerived sets values that default relative to other settings.
func (c *Config) fillDerived() {
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 4 * c.MaxUploadSize
	}
	if c.Metadata.Path == "" {
		switch c.Metadata.Backend {
		case MetadataSQLite:
			c.Metadata.Path = filepath.Join(c.DataDir, "registry.db")
		default:
			c.Metadata.Path = filepath.Join(c.DataDir, "files.json")
		}
	}
	if c.Blobs.Dir == "" {
		c.Blobs.Dir = filepath.Join(c.DataDir, "blobs")
	}
}

// JetStreamDir is where the embedded NATS server keeps its streams.
func (c Config) JetStreamDir() string {
	return filepath.Join(c.DataDir, "jetstream")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.NATSPort < 1024 || c.NATSPort > 65535 {
		return fmt.Errorf("invalid nats port: %d", c.NATSPort)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadSize)
	}
	if c.MaxRequestSize < c.MaxUploadSize {
		return fmt.Errorf("max request size (%d) must not be smaller than max upload size (%d)", c.MaxRequestSize, c.MaxUploadSize)
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("upload timeout must be positive")
	}
	if c.Broadcast.QueueSize <= 0 {
		return fmt.Errorf("session queue size must be positive, got %d", c.Broadcast.QueueSize)
	}

	switch c.Metadata.Backend {
	case MetadataJSON, MetadataSQLite:
	default:
		return fmt.Errorf("unknown metadata backend %q", c.Metadata.Backend)
	}

	switch c.Blobs.Backend {
	case BlobDisk:
	case BlobJetStream:
		if c.Blobs.JetStreamBucket == "" {
			return fmt.Errorf("jetstream blob backend requires a bucket name")
		}
	case BlobS3:
		if c.Blobs.S3.Bucket == "" {
			return fmt.Errorf("s3 blob backend requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blobs.Backend)
	}
	return nil
}

// ParseSize converts human-readable sizes such as "50MB" or "1.5GB" to bytes.
// A bare number is taken as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	units := []struct {
		suffix string
		factor float64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
		v, err := strconv.ParseFloat(num, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid size format: %s", s)
		}
		return int64(v * u.factor), nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid size format: %s", s)
	}
	return v, nil
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvSize(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	size, err := ParseSize(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return size, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
