package broadcast

import "encoding/json"

// Push event names.
const (
	EventFilesList      = "files_list"
	EventFileUpdated    = "file_updated"
	EventFileDeleted    = "file_deleted"
	EventError          = "error"
	EventUploadComplete = "upload_complete"
)

// Envelope is the frame pushed to sessions.
type Envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload"`
}

// Encode marshals the envelope into a text frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// UploadComplete is the payload of an upload_complete event.
type UploadComplete struct {
	ID string `json:"id"`
}
