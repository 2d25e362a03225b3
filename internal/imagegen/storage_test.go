package imagegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileImageStorage_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	storage, err := NewFileImageStorage(dir, "http://localhost:8080/images/", zap.NewNop())
	require.NoError(t, err)

	url, err := storage.Save(context.Background(), "story-1", 2, []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/images/story-1_p2.jpg", url)

	content, err := os.ReadFile(filepath.Join(dir, "story-1_p2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), content)

	_, err = os.Stat(filepath.Join(dir, "story-1_p2.jpg.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileImageStorage_Save_Rejects(t *testing.T) {
	storage, err := NewFileImageStorage(t.TempDir(), "http://localhost/images", zap.NewNop())
	require.NoError(t, err)

	_, err = storage.Save(context.Background(), "../etc", 0, []byte("data"))
	assert.ErrorIs(t, err, ErrImageSaveFailed)

	_, err = storage.Save(context.Background(), "story", 0, nil)
	assert.ErrorIs(t, err, ErrImageSaveFailed)
}

func TestNewFileImageStorage_RequiresConfig(t *testing.T) {
	_, err := NewFileImageStorage("", "http://localhost", zap.NewNop())
	assert.Error(t, err)
	_, err = NewFileImageStorage(t.TempDir(), "", zap.NewNop())
	assert.Error(t, err)
}
