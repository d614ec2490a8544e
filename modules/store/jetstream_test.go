package store

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/go-monolith/mono"
	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uvuchan/chanchu/config"
)

// startJetStreamPlugin runs an embedded NATS server with an in-memory bucket.
func startJetStreamPlugin(t *testing.T, bucket string) *fsjetstream.PluginModule {
	t.Helper()

	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelError),
		mono.WithJetStreamStorageDir(t.TempDir()),
		mono.WithNATSPort(14222),
	)
	require.NoError(t, err)

	plugin, err := fsjetstream.New(fsjetstream.Config{
		Buckets: []fsjetstream.BucketConfig{
			{
				Name:        bucket,
				Description: "Test bucket",
				MaxBytes:    10 * 1024 * 1024,
				Storage:     fsjetstream.MemoryStorage,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, app.RegisterPlugin(plugin, PluginAlias))
	require.NoError(t, app.Start(context.Background()))

	t.Cleanup(func() {
		_ = app.Stop(context.Background())
	})
	return plugin
}

func TestJetStreamBlobStore_RoundTrip(t *testing.T) {
	plugin := startJetStreamPlugin(t, "test-blobs")
	s := NewJetStreamBlobStore(plugin.Bucket("test-blobs"))
	ctx := context.Background()

	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 300*1024)
	n, err := s.Put(ctx, "f1", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	rc, err := s.Open(ctx, "f1")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, payload, got)

	require.NoError(t, s.Delete(ctx, "f1"))
	_, err = s.Open(ctx, "f1")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "f1"), ErrBlobNotFound)
}

func TestJetStreamBlobStore_PrefixedNamesAreDistinct(t *testing.T) {
	plugin := startJetStreamPlugin(t, "prefix-blobs")
	s := NewJetStreamBlobStore(plugin.Bucket("prefix-blobs"))
	ctx := context.Background()

	_, err := s.Put(ctx, "f10", bytes.NewReader([]byte("ten")))
	require.NoError(t, err)

	_, err = s.Open(ctx, "f1")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "f1"), ErrBlobNotFound)

	rc, err := s.Open(ctx, "f10")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "ten", string(got))
}

func TestJetStreamBlobStore_OpenHonoursContext(t *testing.T) {
	plugin := startJetStreamPlugin(t, "ctx-blobs")
	s := NewJetStreamBlobStore(plugin.Bucket("ctx-blobs"))

	_, err := s.Put(context.Background(), "f1", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Open(ctx, "f1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlobNotFound)
}

func TestModule_StartsWithJetStreamPlugin(t *testing.T) {
	plugin := startJetStreamPlugin(t, "registry-files")

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Metadata.Path = cfg.DataDir + "/files.json"
	cfg.Blobs.Backend = config.BlobJetStream

	m := NewModule(cfg, &mockLogger{})
	m.SetPlugin(PluginAlias, plugin)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(context.Background())

	assert.True(t, m.Health(context.Background()).Healthy)
	assert.NotNil(t, m.Store())
}

func TestModule_JetStreamWithoutPluginFails(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Metadata.Path = cfg.DataDir + "/files.json"
	cfg.Blobs.Backend = config.BlobJetStream

	m := NewModule(cfg, &mockLogger{})
	err := m.Start(context.Background())
	assert.ErrorContains(t, err, "not registered")
	assert.False(t, m.Health(context.Background()).Healthy)
}

func TestModule_DiskAndSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Metadata.Backend = config.MetadataSQLite
	cfg.Metadata.Path = cfg.DataDir + "/registry.db"
	cfg.Blobs.Dir = cfg.DataDir + "/blobs"

	m := NewModule(cfg, &mockLogger{})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(context.Background())

	status := m.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, config.MetadataSQLite, status.Details["metadata"])
}
