package store

import (
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/uvuchan/chanchu/domain/file"
)

// mockLogger implements types.Logger for testing and remembers warnings.
type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Debug(msg string, args ...any) {}
func (m *mockLogger) Info(msg string, args ...any)  {}
func (m *mockLogger) Error(msg string, args ...any) {}
func (m *mockLogger) Warn(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

func (m *mockLogger) warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warns...)
}

func sampleRecords() []file.Record {
	base := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	return []file.Record{
		{ID: "b3f1", FileName: "report.pdf", RelativePath: "docs/report.pdf", UploadedBy: "alice", Timestamp: base, Size: 10},
		{ID: "a9c2", FileName: "photo.png", RelativePath: "photo.png", UploadedBy: "bob", Timestamp: base.Add(time.Second), Size: 2048},
		{ID: "7e00", FileName: "notes.txt", RelativePath: "a/b/notes.txt", UploadedBy: "carol", Timestamp: base.Add(2 * time.Second), Size: 0},
	}
}
