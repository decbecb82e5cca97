// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package filestore

import (
	"os"

	"github.com/zeebo/errs"
)

// blobReader implements reading blobs from disk.
type blobReader struct {
	file *os.File
}

func (r *blobReader) Read(p []byte) (int, error)              { return r.file.Read(p) }
func (r *blobReader) ReadAt(p []byte, off int64) (int, error) { return r.file.ReadAt(p, off) }
func (r *blobReader) Close() error                            { return r.file.Close() }

func (r *blobReader) Seek(offset int64, whence int) (int64, error) {
	return r.file.Seek(offset, whence)
}

// Size returns the size of the underlying file.
func (r *blobReader) Size() (int64, error) {
	info, err := r.file.Stat()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return info.Size(), nil
}

// blobWriter writes to a temporary file and renames it into place on Commit.
type blobWriter struct {
	file  *os.File
	final string
	done  bool
}

func (w *blobWriter) Write(p []byte) (int, error) { return w.file.Write(p) }

// Cancel discards the partially written blob.
func (w *blobWriter) Cancel() error {
	if w.done {
		return nil
	}
	w.done = true
	return errs.Combine(w.file.Close(), os.Remove(w.file.Name()))
}

// Commit atomically publishes the blob under its final path.
func (w *blobWriter) Commit() error {
	if w.done {
		return Error.New("already committed or canceled")
	}
	w.done = true
	if err := w.file.Sync(); err != nil {
		return errs.Combine(Error.Wrap(err), w.file.Close(), os.Remove(w.file.Name()))
	}
	if err := w.file.Close(); err != nil {
		return errs.Combine(Error.Wrap(err), os.Remove(w.file.Name()))
	}
	if err := os.Rename(w.file.Name(), w.final); err != nil {
		return errs.Combine(Error.Wrap(err), os.Remove(w.file.Name()))
	}
	return nil
}
