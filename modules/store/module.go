package store

import (
	"context"
	"fmt"
	"os"

	"github.com/go-monolith/mono"
	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/uvuchan/chanchu/config"
)

// PluginAlias is the alias under which the fs-jetstream plugin is registered.
const PluginAlias = "storage"

// Module owns the metadata and blob backends selected by configuration.
type Module struct {
	cfg     config.Config
	logger  types.Logger
	plugin  *fsjetstream.PluginModule
	meta    MetadataStore
	store   *Store
	started bool
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new store module.
func NewModule(cfg config.Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// SetPlugin receives the fs-jetstream plugin from the framework.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != PluginAlias {
		return
	}
	storage, ok := plugin.(*fsjetstream.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for storage",
			"alias", alias,
			"expected", "*fsjetstream.PluginModule")
		return
	}
	m.plugin = storage
	m.logger.Info("Received storage plugin", "alias", alias)
}

// Start opens the configured backends.
func (m *Module) Start(ctx context.Context) error {
	meta, err := m.openMetadata()
	if err != nil {
		return err
	}

	blobs, err := m.openBlobs(ctx)
	if err != nil {
		_ = meta.Close()
		return err
	}

	m.meta = meta
	m.store = New(meta, blobs)
	m.started = true

	m.logger.Info("Store module started",
		"metadata", m.cfg.Metadata.Backend,
		"metadata_path", m.cfg.Metadata.Path,
		"blobs", m.cfg.Blobs.Backend)
	return nil
}

func (m *Module) openMetadata() (MetadataStore, error) {
	switch m.cfg.Metadata.Backend {
	case config.MetadataSQLite:
		return NewSQLiteStore(m.cfg.Metadata.Path, m.logger)
	case config.MetadataJSON, "":
		return NewJSONFileStore(m.cfg.Metadata.Path, m.logger)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", m.cfg.Metadata.Backend)
	}
}

func (m *Module) openBlobs(ctx context.Context) (BlobStore, error) {
	switch m.cfg.Blobs.Backend {
	case config.BlobJetStream:
		if m.plugin == nil {
			return nil, fmt.Errorf("required plugin '%s' not registered", PluginAlias)
		}
		bucket := m.plugin.Bucket(m.cfg.Blobs.JetStreamBucket)
		if bucket == nil {
			return nil, fmt.Errorf("bucket '%s' not found in storage plugin", m.cfg.Blobs.JetStreamBucket)
		}
		return NewJetStreamBlobStore(bucket), nil
	case config.BlobS3:
		client, err := NewS3Client(ctx, m.cfg.Blobs.S3)
		if err != nil {
			return nil, err
		}
		spool := m.cfg.Blobs.Dir
		if err := os.MkdirAll(spool, 0o755); err != nil {
			return nil, fmt.Errorf("create spool directory: %w", err)
		}
		return NewS3BlobStore(client, m.cfg.Blobs.S3.Bucket, m.cfg.Blobs.S3.Prefix, spool), nil
	case config.BlobDisk, "":
		return NewDiskBlobStore(m.cfg.Blobs.Dir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", m.cfg.Blobs.Backend)
	}
}

// Stop closes the metadata backend.
func (m *Module) Stop(_ context.Context) error {
	if m.meta == nil {
		return nil
	}
	if err := m.meta.Close(); err != nil {
		return fmt.Errorf("failed to close metadata store: %w", err)
	}
	m.logger.Info("Store module stopped")
	return nil
}

// Health reports the configured backends and, for SQLite, connectivity.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	details := map[string]any{
		"metadata": m.cfg.Metadata.Backend,
		"blobs":    m.cfg.Blobs.Backend,
	}
	if !m.started {
		return mono.HealthStatus{Healthy: false, Message: "not started", Details: details}
	}
	if pinger, ok := m.meta.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			return mono.HealthStatus{Healthy: false, Message: "database unreachable: " + err.Error(), Details: details}
		}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// Store returns the store. It is nil until Start succeeds.
func (m *Module) Store() *Store {
	return m.store
}
