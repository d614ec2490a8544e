package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/uvuchan/chanchu/events"
	"github.com/uvuchan/chanchu/modules/registry"
)

// DefaultCapacity is how many entries the feed keeps.
const DefaultCapacity = 200

// Entry kinds.
const (
	KindUploaded = "file_uploaded"
	KindDeleted  = "file_deleted"
)

// Entry is one item of the activity feed.
type Entry struct {
	Kind      string    `json:"kind"`
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName"`
	Actor     string    `json:"actor,omitempty"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates the feed with the registry's current state.
type Summary struct {
	Uploads       int   `json:"uploads"`
	Deletes       int   `json:"deletes"`
	UploadedBytes int64 `json:"uploadedBytes"`
	CurrentFiles  int   `json:"currentFiles"`
	CurrentBytes  int64 `json:"currentBytes"`
}

// Module consumes registry events and keeps a bounded feed of recent
// activity.
type Module struct {
	files    registry.FilesPort
	logger   types.Logger
	capacity int

	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	uploads int
	deletes int
	bytes   int64
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new activity module keeping capacity entries.
func NewModule(capacity int, logger types.Logger) *Module {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Module{
		logger:   logger,
		capacity: capacity,
		entries:  make([]Entry, capacity),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// Dependencies declares the registry module dependency.
func (m *Module) Dependencies() []string {
	return []string{"registry"}
}

// SetDependencyServiceContainer receives the registry's service container.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "registry" {
		m.files = registry.NewFilesAdapter(container)
	}
}

// RegisterEventConsumers subscribes to registry events.
func (m *Module) RegisterEventConsumers(reg mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(reg, events.FileUploadedV1, m.handleFileUploaded, m); err != nil {
		return fmt.Errorf("failed to register FileUploaded consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(reg, events.FileDeletedV1, m.handleFileDeleted, m); err != nil {
		return fmt.Errorf("failed to register FileDeleted consumer: %w", err)
	}
	m.logger.Info("Registered event consumers", "events", "FileUploaded, FileDeleted")
	return nil
}

// Start is a no-op.
func (m *Module) Start(_ context.Context) error {
	if m.files == nil {
		m.logger.Warn("Registry services not available, summary will only cover observed events")
	}
	m.logger.Info("Activity module started", "capacity", m.capacity)
	return nil
}

// Stop is a no-op.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}

// Health reports how many events have been observed.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"uploads": m.uploads,
			"deletes": m.deletes,
		},
	}
}

func (m *Module) handleFileUploaded(_ context.Context, event events.FileUploadedEvent, _ *mono.Msg) error {
	m.record(Entry{
		Kind:      KindUploaded,
		FileID:    event.FileID,
		FileName:  event.FileName,
		Actor:     event.UploadedBy,
		Size:      event.Size,
		Timestamp: event.UploadedAt,
	})
	uploadsTotal.Inc()
	uploadedBytesTotal.Add(float64(event.Size))
	return nil
}

func (m *Module) handleFileDeleted(_ context.Context, event events.FileDeletedEvent, _ *mono.Msg) error {
	m.record(Entry{
		Kind:      KindDeleted,
		FileID:    event.FileID,
		FileName:  event.FileName,
		Size:      event.Size,
		Timestamp: event.DeletedAt,
	})
	deletesTotal.Inc()
	return nil
}

func (m *Module) record(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.next] = e
	m.next = (m.next + 1) % m.capacity
	if m.next == 0 {
		m.full = true
	}

	switch e.Kind {
	case KindUploaded:
		m.uploads++
		m.bytes += e.Size
	case KindDeleted:
		m.deletes++
	}
	m.logger.Debug("Activity recorded", "kind", e.Kind, "file_id", e.FileID)
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything kept.
func (m *Module) Recent(limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = m.capacity
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + m.capacity) % m.capacity
		out = append(out, m.entries[idx])
	}
	return out
}

// Summary combines observed totals with the registry's current contents.
func (m *Module) Summary(ctx context.Context) (Summary, error) {
	m.mu.RLock()
	s := Summary{
		Uploads:       m.uploads,
		Deletes:       m.deletes,
		UploadedBytes: m.bytes,
	}
	files := m.files
	m.mu.RUnlock()

	if files == nil {
		return s, nil
	}

	records, err := files.ListFiles(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to list files: %w", err)
	}
	s.CurrentFiles = len(records)
	for _, rec := range records {
		s.CurrentBytes += rec.Size
	}
	return s, nil
}
