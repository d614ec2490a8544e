package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"github.com/uvuchan/chanchu/domain/file"
	"github.com/uvuchan/chanchu/modules/store"
)

// Field limits.
const (
	MaxFileNameLength     = 255
	MaxUploadedByLength   = 100
	MaxRelativePathLength = 4096
)

// Backend is the persistence the registry needs. *store.Store implements it.
type Backend interface {
	LoadAll(ctx context.Context) ([]file.Record, error)
	Persist(ctx context.Context, records []file.Record) error
	PutBlob(ctx context.Context, id string, r io.Reader) (int64, error)
	OpenBlob(ctx context.Context, id string) (io.ReadCloser, error)
	DeleteBlob(ctx context.Context, id string) error
}

// Notifier is told about every committed mutation. Calls happen while the
// registry lock is held, in commit order, so implementations must not block
// and must not call back into the registry.
type Notifier interface {
	FileUpdated(rec file.Record)
	FileDeleted(rec file.Record)
}

// NewFile describes an upload.
type NewFile struct {
	FileName     string
	RelativePath string
	UploadedBy   string
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier adds a notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) {
		r.notifiers = append(r.notifiers, n)
	}
}

// WithMaxSize sets the largest accepted blob in bytes. Zero means no limit.
func WithMaxSize(n int64) Option {
	return func(r *Registry) {
		r.maxSize = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIDGenerator replaces the id source.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

// Registry is the authoritative set of uploaded files. All mutations are
// serialized by one mutex; reads share it.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]file.Record
	order     []string
	lastStamp time.Time

	backend   Backend
	notifiers []Notifier
	maxSize   int64
	now       func() time.Time
	newID     func() string
	logger    types.Logger
}

// New creates an empty registry over backend.
func New(backend Backend, logger types.Logger, opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]file.Record),
		backend: backend,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddNotifier registers n for subsequent mutations.
func (r *Registry) AddNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers = append(r.notifiers, n)
}

// Load replaces the in-memory state with the persisted records.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.backend.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: load records: %v", ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]file.Record, len(records))
	r.order = r.order[:0]
	for _, rec := range records {
		if _, dup := r.records[rec.ID]; dup {
			continue
		}
		r.records[rec.ID] = rec
		r.order = append(r.order, rec.ID)
		if rec.Timestamp.After(r.lastStamp) {
			r.lastStamp = rec.Timestamp
		}
	}
	r.logger.Info("Registry loaded", "files", len(r.order))
	return nil
}

// Create stores content and registers a new record for it.
func (r *Registry) Create(ctx context.Context, in NewFile, content io.Reader) (file.Record, error) {
	in, err := normalize(in)
	if err != nil {
		return file.Record{}, err
	}

	id := r.freshID()

	// The blob is written before the lock is taken so large uploads do not
	// serialize each other.
	size, err := r.putBlob(ctx, id, content)
	if err != nil {
		return file.Record{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.records[id]; taken {
		r.discardBlob(id)
		return file.Record{}, fmt.Errorf("%w: id collision", ErrStorage)
	}

	rec := file.Record{
		ID:           id,
		FileName:     in.FileName,
		RelativePath: in.RelativePath,
		UploadedBy:   in.UploadedBy,
		Timestamp:    r.stamp(),
		Size:         size,
	}

	r.records[id] = rec
	r.order = append(r.order, id)

	if err := r.backend.Persist(ctx, r.listLocked()); err != nil {
		delete(r.records, id)
		r.order = r.order[:len(r.order)-1]
		r.discardBlob(id)
		r.logger.Error("Failed to persist new file", "id", id, "error", err)
		return file.Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for _, n := range r.notifiers {
		n.FileUpdated(rec)
	}

	r.logger.Info("File registered",
		"id", id,
		"file_name", rec.FileName,
		"uploaded_by", rec.UploadedBy,
		"size", size)
	return rec, nil
}

func (r *Registry) putBlob(ctx context.Context, id string, content io.Reader) (int64, error) {
	if content == nil {
		return 0, fmt.Errorf("%w: content is required", ErrValidation)
	}

	src := content
	if r.maxSize > 0 {
		src = io.LimitReader(content, r.maxSize+1)
	}

	size, err := r.backend.PutBlob(ctx, id, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%w: upload aborted: %v", ErrStorage, ctxErr)
		}
		r.logger.Error("Failed to store blob", "id", id, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if r.maxSize > 0 && size > r.maxSize {
		r.discardBlob(id)
		return 0, fmt.Errorf("%w: exceeds %d bytes", ErrPayloadTooLarge, r.maxSize)
	}
	if size == 0 {
		r.discardBlob(id)
		return 0, fmt.Errorf("%w: file is empty", ErrValidation)
	}
	return size, nil
}

// discardBlob removes a blob that never became visible.
func (r *Registry) discardBlob(id string) {
	if err := r.backend.DeleteBlob(context.Background(), id); err != nil && !errors.Is(err, store.ErrBlobNotFound) {
		r.logger.Warn("Failed to discard blob", "id", id, "error", err)
	}
}

// Delete removes the record and its blob.
func (r *Registry) Delete(ctx context.Context, id string) (file.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return file.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	idx := r.indexLocked(id)
	delete(r.records, id)
	r.order = append(r.order[:idx], r.order[idx+1:]...)

	if err := r.backend.Persist(ctx, r.listLocked()); err != nil {
		r.records[id] = rec
		r.order = append(r.order, "")
		copy(r.order[idx+1:], r.order[idx:])
		r.order[idx] = id
		r.logger.Error("Failed to persist deletion", "id", id, "error", err)
		return file.Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// The record is already gone from the durable state; a blob left behind
	// is unreachable and only wastes space.
	if err := r.backend.DeleteBlob(ctx, id); err != nil {
		r.logger.Warn("Orphaned blob after delete", "id", id, "error", err)
	}

	for _, n := range r.notifiers {
		n.FileDeleted(rec)
	}

	r.logger.Info("File deleted", "id", id, "file_name", rec.FileName)
	return rec, nil
}

// Get returns the record with id.
func (r *Registry) Get(id string) (file.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return file.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Open returns the record with id together with a reader for its content.
// Lookup and open happen under the read lock, so the blob cannot be deleted
// in between.
func (r *Registry) Open(ctx context.Context, id string) (file.Record, io.ReadCloser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return file.Record{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rc, err := r.backend.OpenBlob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrBlobNotFound) {
			r.logger.Error("Blob missing for registered file", "id", id)
		}
		return file.Record{}, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return rec, rc, nil
}

// List returns all records in insertion order.
func (r *Registry) List() []file.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// Snapshot calls fn with the current records while holding the read lock.
// No mutation can commit, and so no notification can be sent, until fn
// returns.
func (r *Registry) Snapshot(fn func([]file.Record)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.listLocked())
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) listLocked() []file.Record {
	out := make([]file.Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

func (r *Registry) indexLocked(id string) int {
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

// stamp returns the current time, nudged forward so it is strictly after
// every previous stamp.
func (r *Registry) stamp() time.Time {
	now := r.now().UTC()
	if !now.After(r.lastStamp) {
		now = r.lastStamp.Add(time.Nanosecond)
	}
	r.lastStamp = now
	return now
}

func (r *Registry) freshID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for {
		id := r.newID()
		if _, taken := r.records[id]; !taken && id != "" {
			return id
		}
	}
}

func normalize(in NewFile) (NewFile, error) {
	in.FileName = strings.TrimSpace(in.FileName)
	in.UploadedBy = strings.TrimSpace(in.UploadedBy)
	in.RelativePath = strings.TrimSpace(strings.ReplaceAll(in.RelativePath, `\`, "/"))

	switch {
	case in.FileName == "":
		return in, fmt.Errorf("%w: fileName is required", ErrValidation)
	case in.UploadedBy == "":
		return in, fmt.Errorf("%w: uploadedBy is required", ErrValidation)
	case !utf8.ValidString(in.FileName) || !utf8.ValidString(in.UploadedBy) || !utf8.ValidString(in.RelativePath):
		return in, fmt.Errorf("%w: fields must be valid UTF-8", ErrValidation)
	case len(in.FileName) > MaxFileNameLength:
		return in, fmt.Errorf("%w: fileName exceeds %d bytes", ErrValidation, MaxFileNameLength)
	case len(in.UploadedBy) > MaxUploadedByLength:
		return in, fmt.Errorf("%w: uploadedBy exceeds %d bytes", ErrValidation, MaxUploadedByLength)
	case len(in.RelativePath) > MaxRelativePathLength:
		return in, fmt.Errorf("%w: relativePath exceeds %d bytes", ErrValidation, MaxRelativePathLength)
	}

	if in.RelativePath == "" {
		in.RelativePath = in.FileName
	}
	return in, nil
}
