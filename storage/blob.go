// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package storage declares the blob storage interface used for replays,
// avatars and other user provided files.
package storage

import (
	"context"
	"io"

	"github.com/zeebo/errs"
)

// ErrInvalidBlobRef is returned when a blob reference is invalid.
var ErrInvalidBlobRef = errs.Class("invalid blob ref")

// ErrBlobNotFound is returned when the referenced blob does not exist.
var ErrBlobNotFound = errs.Class("blob not found")

// BlobRef is a reference to a blob within a namespace.
type BlobRef struct {
	Namespace string
	Key       string
}

// IsValid returns whether both namespace and key are specified.
func (ref BlobRef) IsValid() bool {
	return len(ref.Namespace) > 0 && len(ref.Key) > 0
}

// BlobReader groups Read, ReadAt, Seek and Close over a stored blob.
type BlobReader interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
	// Size returns the size of the blob.
	Size() (int64, error)
}

// BlobWriter is a handle for writing a new blob. The blob becomes visible
// to readers only after Commit.
type BlobWriter interface {
	io.Writer
	// Cancel discards the blob.
	Cancel() error
	// Commit makes the blob readable by others, replacing any previous
	// blob stored under the same reference.
	Commit() error
}

// Blobs is a blob storage interface.
//
// architecture: Database
type Blobs interface {
	// Create creates a new blob that can be written.
	Create(ctx context.Context, ref BlobRef) (BlobWriter, error)
	// Open opens a reader for the specified reference.
	Open(ctx context.Context, ref BlobRef) (BlobReader, error)
	// Delete deletes the blob with the specified reference.
	Delete(ctx context.Context, ref BlobRef) error
	// Exists reports whether a committed blob exists for the reference.
	Exists(ctx context.Context, ref BlobRef) (bool, error)
}
