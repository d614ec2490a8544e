package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/uvuchan/chanchu/domain/file"
	"github.com/uvuchan/chanchu/events"
)

// listFiles handles the list-files service request.
func (m *Module) listFiles(_ context.Context, _ ListFilesRequest, _ *mono.Msg) (ListFilesResponse, error) {
	if m.registry == nil {
		return ListFilesResponse{}, fmt.Errorf("registry not started")
	}
	files := m.registry.List()
	return ListFilesResponse{Files: files, Total: len(files)}, nil
}

// getFile handles the get-file service request.
func (m *Module) getFile(_ context.Context, req GetFileRequest, _ *mono.Msg) (GetFileResponse, error) {
	if m.registry == nil {
		return GetFileResponse{}, fmt.Errorf("registry not started")
	}
	rec, err := m.registry.Get(req.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return GetFileResponse{Found: false}, nil
		}
		return GetFileResponse{}, err
	}
	return GetFileResponse{File: &rec, Found: true}, nil
}

// deleteFile handles the delete-file service request.
func (m *Module) deleteFile(ctx context.Context, req DeleteFileRequest, _ *mono.Msg) (DeleteFileResponse, error) {
	if m.registry == nil {
		return DeleteFileResponse{}, fmt.Errorf("registry not started")
	}
	if req.ID == "" {
		return DeleteFileResponse{}, fmt.Errorf("%w: id is required", ErrValidation)
	}
	if _, err := m.registry.Delete(ctx, req.ID); err != nil {
		return DeleteFileResponse{ID: req.ID}, err
	}
	return DeleteFileResponse{ID: req.ID, Deleted: true}, nil
}

// eventPublisher forwards committed mutations to the event bus. Publishing
// is best-effort: failures are logged and never undo the mutation.
type eventPublisher struct {
	module *Module
}

func (p *eventPublisher) FileUpdated(rec file.Record) {
	bus := p.module.eventBus
	if bus == nil {
		return
	}
	event := events.FileUploadedEvent{
		FileID:       rec.ID,
		FileName:     rec.FileName,
		RelativePath: rec.RelativePath,
		UploadedBy:   rec.UploadedBy,
		Size:         rec.Size,
		UploadedAt:   rec.Timestamp,
	}
	if err := events.FileUploadedV1.Publish(bus, event, nil); err != nil {
		p.module.logger.Warn("Failed to publish FileUploaded event", "id", rec.ID, "error", err)
	}
}

func (p *eventPublisher) FileDeleted(rec file.Record) {
	bus := p.module.eventBus
	if bus == nil {
		return
	}
	event := events.FileDeletedEvent{
		FileID:     rec.ID,
		FileName:   rec.FileName,
		UploadedBy: rec.UploadedBy,
		Size:       rec.Size,
		DeletedAt:  time.Now().UTC(),
	}
	if err := events.FileDeletedV1.Publish(bus, event, nil); err != nil {
		p.module.logger.Warn("Failed to publish FileDeleted event", "id", rec.ID, "error", err)
	}
}
