// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package filestore implements the blob storage interface on the local
// filesystem.
package filestore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"

	"tempora.dev/tempora/storage"
)

// Error is the default filestore error class.
var Error = errs.Class("filestore")

var _ storage.Blobs = (*Store)(nil)

// Store implements a disk backed blob store. Keys are sharded into
// two-character prefix directories to keep directory sizes bounded.
type Store struct {
	root string
}

// New creates a blob store rooted at the given directory, creating it
// when missing.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{root: root}, nil
}

func (store *Store) refPath(ref storage.BlobRef) (string, error) {
	if !ref.IsValid() {
		return "", storage.ErrInvalidBlobRef.New("%q/%q", ref.Namespace, ref.Key)
	}
	shard := ref.Key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(store.root, ref.Namespace, shard, ref.Key), nil
}

// Create creates a new blob that can be written.
func (store *Store) Create(ctx context.Context, ref storage.BlobRef) (storage.BlobWriter, error) {
	path, err := store.refPath(ref)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, Error.Wrap(err)
	}
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".partial-*")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &blobWriter{file: file, final: path}, nil
}

// Open opens a reader for the specified reference.
func (store *Store) Open(ctx context.Context, ref storage.BlobRef) (storage.BlobReader, error) {
	path, err := store.refPath(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrBlobNotFound.New("%q/%q", ref.Namespace, ref.Key)
		}
		return nil, Error.Wrap(err)
	}
	return &blobReader{file: file}, nil
}

// Delete deletes the blob with the specified reference.
func (store *Store) Delete(ctx context.Context, ref storage.BlobRef) error {
	path, err := store.refPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return Error.Wrap(err)
	}
	return nil
}

// Exists reports whether a committed blob exists for the reference.
func (store *Store) Exists(ctx context.Context, ref storage.BlobRef) (bool, error) {
	path, err := store.refPath(ref)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, Error.Wrap(statErr)
}
