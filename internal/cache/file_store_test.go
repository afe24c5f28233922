package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
)

func newTestFileStore(t *testing.T) *FileArtifactStore {
	t.Helper()

	store, err := NewFileArtifactStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	return store
}

func TestFileStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	model := testModel("model-a")
	require.NoError(t, store.Save(ctx, model))

	loaded, err := store.Load(ctx, "model-a")
	require.NoError(t, err)
	assert.Equal(t, model.Weights, loaded.Weights)
	assert.Equal(t, model.Biases, loaded.Biases)
	assert.Equal(t, model.Config, loaded.Config)
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := newTestFileStore(t)

	_, err := store.Load(context.Background(), "absent")
	assert.ErrorIs(t, err, pkgerrors.ErrModelNotFound)
}

func TestFileStoreLoadCorrupted(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.basePath, "bad.json"), []byte("garbage"), 0o644))

	_, err := store.Load(context.Background(), "bad")
	require.Error(t, err)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.CodeRecordCorrupted, appErr.Code)
}

func TestFileStoreLoadWrongFormat(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.basePath, "odd.json"),
		[]byte(`{"format":"something_else","format_version":1}`), 0o644))

	_, err := store.Load(context.Background(), "odd")
	require.Error(t, err)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.CodeRecordCorrupted, appErr.Code)
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	require.NoError(t, store.Save(ctx, testModel("model-a")))
	require.NoError(t, store.Delete(ctx, "model-a"))
	require.NoError(t, store.Delete(ctx, "model-a"))

	_, err := store.Load(ctx, "model-a")
	assert.ErrorIs(t, err, pkgerrors.ErrModelNotFound)
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	require.NoError(t, store.Save(ctx, testModel("model-a")))
	require.NoError(t, store.Save(ctx, testModel("model-b")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"model-a", "model-b"}, ids)
}
