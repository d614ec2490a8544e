package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// FileUploadedEvent is emitted after a file has been stored and registered.
type FileUploadedEvent struct {
	FileID       string    `json:"file_id"`
	FileName     string    `json:"file_name"`
	RelativePath string    `json:"relative_path"`
	UploadedBy   string    `json:"uploaded_by"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// FileUploadedV1 is the typed event definition for file uploads.
// Subject: events.registry.v1.file-uploaded
var FileUploadedV1 = helper.EventDefinition[FileUploadedEvent](
	"registry", "FileUploaded", "v1",
)

// FileDeletedEvent is emitted after a file has been removed from the registry.
type FileDeletedEvent struct {
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	UploadedBy string    `json:"uploaded_by"`
	Size       int64     `json:"size"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// FileDeletedV1 is the typed event definition for file deletions.
// Subject: events.registry.v1.file-deleted
var FileDeletedV1 = helper.EventDefinition[FileDeletedEvent](
	"registry", "FileDeleted", "v1",
)
