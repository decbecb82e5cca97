// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package filestore_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/internal/testcontext"
	"tempora.dev/tempora/internal/testrand"
	"tempora.dev/tempora/storage"
	"tempora.dev/tempora/storage/filestore"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := filestore.New(ctx.Dir("blobs"))
	require.NoError(t, err)

	ref := storage.BlobRef{Namespace: "replays", Key: "score_42.osr"}
	data := testrand.BytesN(4096)

	writer, err := store.Create(ctx, ref)
	require.NoError(t, err)
	_, err = writer.Write(data)
	require.NoError(t, err)

	// not visible before commit
	exists, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, writer.Commit())

	exists, err = store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, exists)

	reader, err := store.Open(ctx, ref)
	require.NoError(t, err)
	defer ctx.Check(reader.Close)

	size, err := reader.Size()
	require.NoError(t, err)
	assert.EqualValues(t, len(data), size)

	read, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestStoreCommitReplaces(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := filestore.New(ctx.Dir("blobs"))
	require.NoError(t, err)

	ref := storage.BlobRef{Namespace: "avatars", Key: "1001"}

	for _, contents := range []string{"first", "second"} {
		writer, err := store.Create(ctx, ref)
		require.NoError(t, err)
		_, err = writer.Write([]byte(contents))
		require.NoError(t, err)
		require.NoError(t, writer.Commit())
	}

	reader, err := store.Open(ctx, ref)
	require.NoError(t, err)
	defer ctx.Check(reader.Close)

	read, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "second", string(read))
}

func TestStoreCancelLeavesNothing(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := filestore.New(ctx.Dir("blobs"))
	require.NoError(t, err)

	ref := storage.BlobRef{Namespace: "replays", Key: "abandoned"}

	writer, err := store.Create(ctx, ref)
	require.NoError(t, err)
	_, err = writer.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, writer.Cancel())

	_, err = store.Open(ctx, ref)
	require.True(t, storage.ErrBlobNotFound.Has(err))
}

func TestStoreDelete(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := filestore.New(ctx.Dir("blobs"))
	require.NoError(t, err)

	ref := storage.BlobRef{Namespace: "covers", Key: "77"}

	writer, err := store.Create(ctx, ref)
	require.NoError(t, err)
	_, err = writer.Write([]byte("cover"))
	require.NoError(t, err)
	require.NoError(t, writer.Commit())

	require.NoError(t, store.Delete(ctx, ref))
	// deleting a missing blob is not an error
	require.NoError(t, store.Delete(ctx, ref))

	exists, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInvalidRef(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := filestore.New(ctx.Dir("blobs"))
	require.NoError(t, err)

	_, err = store.Create(ctx, storage.BlobRef{Namespace: "", Key: "x"})
	require.True(t, storage.ErrInvalidBlobRef.Has(err))

	_, err = store.Open(ctx, storage.BlobRef{Namespace: "replays", Key: ""})
	require.True(t, storage.ErrInvalidBlobRef.Has(err))
}
