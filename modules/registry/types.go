package registry

import "github.com/uvuchan/chanchu/domain/file"

// ListFilesRequest is the request for the list-files service.
type ListFilesRequest struct{}

// ListFilesResponse is the response for the list-files service.
type ListFilesResponse struct {
	Files []file.Record `json:"files"`
	Total int           `json:"total"`
}

// GetFileRequest is the request for the get-file service.
type GetFileRequest struct {
	ID string `json:"id"`
}

// GetFileResponse is the response for the get-file service.
type GetFileResponse struct {
	File  *file.Record `json:"file,omitempty"`
	Found bool         `json:"found"`
}

// DeleteFileRequest is the request for the delete-file service.
type DeleteFileRequest struct {
	ID string `json:"id"`
}

// DeleteFileResponse is the response for the delete-file service.
type DeleteFileResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
