package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/go-monolith/mono/pkg/storage"
)

// JetStreamBlobStore keeps blobs as objects in a NATS JetStream object store
// bucket provided by the fs-jetstream plugin. The object name is the id.
type JetStreamBlobStore struct {
	bucket fsjetstream.FileStoragePort
}

// NewJetStreamBlobStore wraps an fs-jetstream bucket.
func NewJetStreamBlobStore(bucket fsjetstream.FileStoragePort) *JetStreamBlobStore {
	return &JetStreamBlobStore{bucket: bucket}
}

// Put streams r into the bucket in chunks.
func (j *JetStreamBlobStore) Put(ctx context.Context, id string, r io.Reader) (int64, error) {
	info, err := j.bucket.PutReaderWithContext(ctx, id, newContextReader(ctx, r), 0,
		fsjetstream.WithDescription("registry blob"),
		fsjetstream.WithHeaders(map[string]string{
			"File-ID": id,
		}),
	)
	if err != nil {
		// The object store discards incomplete uploads; make sure nothing
		// readable is left under id either way.
		_ = j.bucket.DeleteWithContext(context.WithoutCancel(ctx), id)
		return 0, fmt.Errorf("put object: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = j.bucket.DeleteWithContext(context.WithoutCancel(ctx), id)
		return 0, err
	}
	return int64(info.Size), nil
}

// Open returns a streaming reader for the object.
func (j *JetStreamBlobStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	reader, _, err := j.bucket.GetReaderWithContext(ctx, id)
	if err != nil {
		return nil, mapObjectError("get object", id, err)
	}
	return reader, nil
}

// Delete removes the object. The bucket treats a missing object as a
// successful delete, so presence is checked with a metadata lookup first.
func (j *JetStreamBlobStore) Delete(ctx context.Context, id string) error {
	if _, err := j.bucket.StatWithContext(ctx, id); err != nil {
		return mapObjectError("stat object", id, err)
	}
	if err := j.bucket.DeleteWithContext(ctx, id); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func mapObjectError(op, id string, err error) error {
	if errors.Is(err, storage.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	return fmt.Errorf("%s: %w", op, err)
}
