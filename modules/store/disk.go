package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskBlobStore keeps each blob as a file under dir, sharded by the first
// two characters of the id.
type DiskBlobStore struct {
	dir string
}

// NewDiskBlobStore creates the root directory if needed.
func NewDiskBlobStore(dir string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &DiskBlobStore{dir: dir}, nil
}

func (d *DiskBlobStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid blob id %q", id)
	}
	shard := id
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(d.dir, shard, id), nil
}

// Put streams r into a temp file, syncs it and renames it into place.
func (d *DiskBlobStore) Put(ctx context.Context, id string, r io.Reader) (n int64, err error) {
	target, err := d.path(id)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err = io.Copy(tmp, newContextReader(ctx, r))
	if err != nil {
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync blob: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("close blob: %w", err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("commit blob: %w", err)
	}
	return n, nil
}

// Open opens the blob for reading.
func (d *DiskBlobStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	target, err := d.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob.
func (d *DiskBlobStore) Delete(_ context.Context, id string) error {
	target, err := d.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
