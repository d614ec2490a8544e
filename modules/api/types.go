package api

import (
	"encoding/json"

	"github.com/uvuchan/chanchu/domain/file"
	"github.com/uvuchan/chanchu/modules/activity"
)

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// FileListResponse represents the response for listing files.
type FileListResponse struct {
	Files []file.Record `json:"files"`
	Total int           `json:"total"`
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// BatchError describes one file of a batch that was not stored.
type BatchError struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

// BatchUploadResponse represents the response for a batch upload.
type BatchUploadResponse struct {
	Uploaded []file.Record `json:"uploaded"`
	Count    int           `json:"count"`
	Errors   []BatchError  `json:"errors,omitempty"`
}

// ActivityResponse represents the recent activity feed.
type ActivityResponse struct {
	Entries []activity.Entry `json:"entries"`
	Summary activity.Summary `json:"summary"`
}

// inboundMessage is a frame sent by a WebSocket client.
type inboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// UploadFilePayload is the payload of an upload_file message. FileContent is
// plain base64 or a data URL.
type UploadFilePayload struct {
	FileName     string `json:"fileName"`
	RelativePath string `json:"relativePath,omitempty"`
	UploadedBy   string `json:"uploadedBy,omitempty"`
	FileContent  string `json:"fileContent"`
}
