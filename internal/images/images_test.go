package images_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimeline/internal/images"
	"tasktimeline/internal/model"
)

// TestService_Save тестирует копирование файла в каталог приложения
func TestService_Save(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/picked/photo.jpg", []byte("jpeg"), 0o644))

	svc := images.NewService(fs, "/data")
	dest, err := svc.Save(ctx, "/picked/photo.jpg")
	require.NoError(t, err)

	assert.Equal(t, "/data/images", filepath.Dir(dest))
	assert.True(t, strings.HasPrefix(filepath.Base(dest), "task_"))
	assert.True(t, strings.HasSuffix(dest, ".jpg"))

	data, err := afero.ReadFile(fs, dest)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	other, err := svc.SaveFromReader(ctx, strings.NewReader("second"))
	require.NoError(t, err)
	assert.NotEqual(t, dest, other)
}

// TestService_SaveMissingSource тестирует ошибку чтения исходного файла
func TestService_SaveMissingSource(t *testing.T) {
	svc := images.NewService(afero.NewMemMapFs(), "/data")
	_, err := svc.Save(context.Background(), "/nope.jpg")
	assert.ErrorIs(t, err, model.ErrIOFailure)
}

// TestService_SaveReadOnly тестирует ошибку записи
func TestService_SaveReadOnly(t *testing.T) {
	svc := images.NewService(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/data")
	_, err := svc.SaveFromReader(context.Background(), strings.NewReader("x"))
	assert.ErrorIs(t, err, model.ErrIOFailure)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

// TestService_SaveFromReaderFailureCleansUp тестирует удаление недописанного файла
func TestService_SaveFromReaderFailureCleansUp(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := images.NewService(fs, "/data")

	_, err := svc.SaveFromReader(context.Background(), failingReader{})
	assert.ErrorIs(t, err, model.ErrIOFailure)

	entries, err := afero.ReadDir(fs, svc.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestService_Delete тестирует удаление файла, в том числе отсутствующего
func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	svc := images.NewService(fs, "/data")

	dest, err := svc.SaveFromReader(ctx, strings.NewReader("x"))
	require.NoError(t, err)

	f, err := svc.Open(dest)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, svc.Delete(ctx, dest))
	_, err = svc.Open(dest)
	assert.ErrorIs(t, err, model.ErrIOFailure)

	exists, err := afero.Exists(fs, dest)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, svc.Delete(ctx, dest))
	assert.NoError(t, svc.Delete(ctx, ""))
}
