package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
	"github.com/uvuchan/chanchu/config"
	"github.com/uvuchan/chanchu/modules/broadcast"
	"github.com/uvuchan/chanchu/modules/registry"
	"github.com/uvuchan/chanchu/modules/store"
)

// mockLogger implements types.Logger for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

type staticRegistry struct {
	reg *registry.Registry
}

func (s staticRegistry) Registry() *registry.Registry { return s.reg }

type testEnv struct {
	module *Module
	reg    *registry.Registry
	hub    *broadcast.Hub
	dir    string
}

// newTestEnv wires the module over a real registry backed by a JSON file
// and disk blobs in a temp dir.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := &mockLogger{}

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.MaxUploadSize = 1024
	cfg.MaxRequestSize = 64 * 1024
	cfg.Broadcast.PingInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	meta, err := store.NewJSONFileStore(filepath.Join(dir, "files.json"), logger)
	require.NoError(t, err)
	blobs, err := store.NewDiskBlobStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	hub := broadcast.NewHub(logger)
	reg := registry.New(store.New(meta, blobs), logger,
		registry.WithMaxSize(cfg.MaxUploadSize),
		registry.WithNotifier(hub))
	require.NoError(t, reg.Load(context.Background()))

	m, err := NewModule(cfg, logger)
	require.NoError(t, err)
	m.SetRegistryModule(staticRegistry{reg: reg})
	m.SetHub(hub)
	require.NoError(t, m.init())

	return &testEnv{module: m, reg: reg, hub: hub, dir: dir}
}

type part struct {
	field    string
	fileName string
	content  []byte
}

// multipartRequest builds a multipart POST with the given fields and parts.
func multipartRequest(t *testing.T, target string, fields map[string][]string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, w.WriteField(name, v))
		}
	}
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.fileName)
		require.NoError(t, err)
		_, err = fw.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.module.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}
