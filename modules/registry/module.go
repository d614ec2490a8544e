package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/uvuchan/chanchu/events"
	"github.com/uvuchan/chanchu/modules/store"
)

// StoreProvider gives access to the started store.
type StoreProvider interface {
	Store() *store.Store
}

// Module hosts the registry inside the mono application. It emits
// FileUploaded and FileDeleted events and serves list-files, get-file and
// delete-file over request-reply.
type Module struct {
	stores    StoreProvider
	maxSize   int64
	notifiers []Notifier
	eventBus  mono.EventBus
	registry  *Registry
	logger    types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new registry module. maxSize is the per-file ceiling
// in bytes.
func NewModule(maxSize int64, logger types.Logger) *Module {
	return &Module{
		maxSize: maxSize,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "registry"
}

// SetStoreModule injects the store dependency.
func (m *Module) SetStoreModule(stores StoreProvider) {
	m.stores = stores
}

// AddNotifier registers a notifier that is attached when the registry is
// created in Start.
func (m *Module) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// SetEventBus is called by the framework to inject the event bus.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module publishes.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.FileUploadedV1.ToBase(),
		events.FileDeletedV1.ToBase(),
	}
}

// RegisterServices registers request-reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "list-files", json.Unmarshal, json.Marshal, m.listFiles,
	); err != nil {
		return fmt.Errorf("failed to register list-files service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "get-file", json.Unmarshal, json.Marshal, m.getFile,
	); err != nil {
		return fmt.Errorf("failed to register get-file service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "delete-file", json.Unmarshal, json.Marshal, m.deleteFile,
	); err != nil {
		return fmt.Errorf("failed to register delete-file service: %w", err)
	}

	m.logger.Info("Registered services", "services", "list-files, get-file, delete-file")
	return nil
}

// Start builds the registry over the started store and loads persisted
// records.
func (m *Module) Start(ctx context.Context) error {
	if m.stores == nil || m.stores.Store() == nil {
		return fmt.Errorf("store dependency not set")
	}
	if m.eventBus == nil {
		m.logger.Warn("Event bus not set, file events will not be published")
	}

	opts := []Option{WithMaxSize(m.maxSize)}
	for _, n := range m.notifiers {
		opts = append(opts, WithNotifier(n))
	}
	opts = append(opts, WithNotifier(&eventPublisher{module: m}))

	reg := New(m.stores.Store(), m.logger, opts...)
	if err := reg.Load(ctx); err != nil {
		return err
	}
	m.registry = reg

	m.logger.Info("Registry module started", "files", reg.Len(), "max_size", m.maxSize)
	return nil
}

// Stop is a no-op; the store module owns the persistent resources.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Registry module stopped")
	return nil
}

// Health reports the number of registered files.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.registry == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"files": m.registry.Len(),
		},
	}
}

// Registry returns the registry. It is nil until Start succeeds.
func (m *Module) Registry() *Registry {
	return m.registry
}
