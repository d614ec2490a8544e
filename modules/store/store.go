package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/uvuchan/chanchu/domain/file"
)

// ErrBlobNotFound is returned when no blob exists for an id.
var ErrBlobNotFound = errors.New("blob not found")

// MetadataStore persists the full ordered list of file records.
//
// LoadAll never fails because of a missing or unreadable backing file: it
// logs a warning and returns an empty list so the server can still start.
// Persist replaces everything previously stored and is durable on return.
type MetadataStore interface {
	LoadAll(ctx context.Context) ([]file.Record, error)
	Persist(ctx context.Context, records []file.Record) error
	Close() error
}

// BlobStore keeps file contents addressed by record id.
type BlobStore interface {
	// Put streams r into the blob named id and returns the number of bytes
	// written. A failed or cancelled Put leaves nothing behind.
	Put(ctx context.Context, id string, r io.Reader) (int64, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

// Store is the persistence boundary of the registry: record metadata plus
// blob contents.
type Store struct {
	meta  MetadataStore
	blobs BlobStore
}

// New combines a metadata store and a blob store.
func New(meta MetadataStore, blobs BlobStore) *Store {
	return &Store{meta: meta, blobs: blobs}
}

// LoadAll returns every persisted record in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]file.Record, error) {
	return s.meta.LoadAll(ctx)
}

// Persist overwrites the stored records with records.
func (s *Store) Persist(ctx context.Context, records []file.Record) error {
	if err := s.meta.Persist(ctx, records); err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}
	return nil
}

// PutBlob stores the contents of r under id.
func (s *Store) PutBlob(ctx context.Context, id string, r io.Reader) (int64, error) {
	return s.blobs.Put(ctx, id, r)
}

// OpenBlob opens the contents stored under id.
func (s *Store) OpenBlob(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.blobs.Open(ctx, id)
}

// DeleteBlob removes the contents stored under id.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	return s.blobs.Delete(ctx, id)
}

// Close releases the metadata backend.
func (s *Store) Close() error {
	return s.meta.Close()
}

// contextReader stops reading once ctx is done, so a cancelled upload
// aborts the copy into a blob backend.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func newContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
