package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/photostore"
)

func writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func TestLocalPhotoStoreSaveAndOpen(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	imageData := []byte("fake png data")
	src := writeSource(t, "capture.PNG", imageData)

	localPath, err := store.Save(ctx, "u1", src, domain.CategoryItems)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(localPath, "u1/items/"))
	assert.Equal(t, ".png", filepath.Ext(localPath))

	reader, mimeType, err := store.Open(ctx, localPath)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "image/png", mimeType)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, imageData, data)
}

func TestLocalPhotoStoreSaveLeavesSourceUntouched(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	src := writeSource(t, "capture.jpg", []byte("original"))
	_, err = store.Save(context.Background(), "u1", "file://"+filepath.ToSlash(src), domain.CategoryRecipes)
	require.NoError(t, err)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestLocalPhotoStoreSaveDefaultExtension(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	src := writeSource(t, "capture", []byte("no extension"))
	localPath, err := store.Save(context.Background(), "u1", src, domain.CategoryProfile)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(localPath))

	src = writeSource(t, "capture.exe", []byte("odd extension"))
	localPath, err = store.Save(context.Background(), "u1", src, domain.CategoryProfile)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(localPath))
}

func TestLocalPhotoStoreSaveUniquePaths(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		localPath, err := store.SaveReader(ctx, "u1", domain.CategoryItems, ".jpg", bytes.NewReader([]byte{byte(i)}))
		require.NoError(t, err)
		require.False(t, seen[localPath], "duplicate path %s", localPath)
		seen[localPath] = true
	}
	assert.Len(t, seen, 1000)
}

func TestLocalPhotoStoreSaveFrozenClockStillUnique(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)
	frozen := store.now()
	store.now = func() time.Time { return frozen }

	ctx := context.Background()
	a, err := store.SaveReader(ctx, "u1", domain.CategoryItems, ".jpg", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	b, err := store.SaveReader(ctx, "u1", domain.CategoryItems, ".jpg", bytes.NewReader([]byte("b")))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalPhotoStoreConcurrentSaves(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = make(map[string]bool)
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := store.SaveReader(context.Background(), "u1", domain.CategoryItems, ".jpg", bytes.NewReader([]byte("x")))
			assert.NoError(t, err)
			mu.Lock()
			paths[p] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, paths, 20)
}

func TestLocalPhotoStoreSaveErrors(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var awe *photostore.AssetWriteError

	_, err = store.Save(ctx, "u1", filepath.Join(t.TempDir(), "missing.jpg"), domain.CategoryItems)
	assert.ErrorAs(t, err, &awe)

	_, err = store.Save(ctx, "u1", "https://example.com/a.jpg", domain.CategoryItems)
	assert.ErrorAs(t, err, &awe)

	_, err = store.SaveReader(ctx, "../evil", domain.CategoryItems, ".jpg", bytes.NewReader(nil))
	assert.ErrorAs(t, err, &awe)

	_, err = store.SaveReader(ctx, "u1", domain.Category("usage"), ".jpg", bytes.NewReader(nil))
	assert.ErrorAs(t, err, &awe)

	_, err = store.SaveReader(ctx, "u1", domain.CategoryItems, ".jpg", &errReader{})
	assert.ErrorAs(t, err, &awe)
}

func TestLocalPhotoStoreCopyFailureRemovesPartialFile(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalPhotoStore(base)
	require.NoError(t, err)

	_, err = store.SaveReader(context.Background(), "u1", domain.CategoryItems, ".jpg", &errReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(base, "u1", "items"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalPhotoStoreDelete(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	localPath, err := store.SaveReader(ctx, "u1", domain.CategoryItems, ".jpg", bytes.NewReader([]byte("test data")))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, localPath))

	_, _, err = store.Open(ctx, localPath)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, localPath), domain.ErrNotFound)
}

func TestLocalPhotoStorePathTraversal(t *testing.T) {
	store, err := NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Open(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

// errReader always returns an error on Read.
type errReader struct{}

func (e *errReader) Read(_ []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
