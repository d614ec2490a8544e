package file

import "time"

// Record is the metadata of one uploaded file. The blob itself lives in the
// configured blob store and is addressed by ID.
type Record struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName"`
	RelativePath string    `json:"relativePath"`
	UploadedBy   string    `json:"uploadedBy"`
	Timestamp    time.Time `json:"timestamp"`
	Size         int64     `json:"size"`
}

// CloneList returns a copy of records that is never nil, so it always
// encodes as a JSON array.
func CloneList(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
