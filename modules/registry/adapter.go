package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/uvuchan/chanchu/domain/file"
)

// FilesPort is how other modules read the registry without importing it
// directly.
type FilesPort interface {
	ListFiles(ctx context.Context) ([]file.Record, error)
	GetFile(ctx context.Context, id string) (*file.Record, error)
}

// filesAdapter wraps ServiceContainer for type-safe cross-module calls.
type filesAdapter struct {
	container mono.ServiceContainer
}

// NewFilesAdapter creates an adapter over the registry module's services.
// container is received via SetDependencyServiceContainer.
func NewFilesAdapter(container mono.ServiceContainer) FilesPort {
	if container == nil {
		panic("files adapter requires non-nil ServiceContainer")
	}
	return &filesAdapter{container: container}
}

// ListFiles calls the list-files service.
func (a *filesAdapter) ListFiles(ctx context.Context) ([]file.Record, error) {
	req := ListFilesRequest{}
	var resp ListFilesResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"list-files",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("list-files service call failed: %w", err)
	}
	return file.CloneList(resp.Files), nil
}

// GetFile calls the get-file service.
func (a *filesAdapter) GetFile(ctx context.Context, id string) (*file.Record, error) {
	req := GetFileRequest{ID: id}
	var resp GetFileResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"get-file",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("get-file service call failed: %w", err)
	}

	if !resp.Found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return resp.File, nil
}
