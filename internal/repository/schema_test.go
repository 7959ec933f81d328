package repository_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tasktimeline/internal/repository"
)

const legacySchema = `CREATE TABLE tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	note TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	image_uri TEXT,
	completed INTEGER DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// TestNewDB_MigratesLegacyImageURI тестирует миграцию image_uri -> image_uris
func TestNewDB_MigratesLegacyImageURI(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, legacy.Exec(legacySchema).Error)
	stamp := "2024-12-03T10:00:00.000Z"
	insert := `INSERT INTO tasks (note, date, time, image_uri, completed, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)`
	require.NoError(t, legacy.Exec(insert, "with image", "2024-12-03", "10:00 AM", "file:///images/a.jpg", stamp, stamp).Error)
	require.NoError(t, legacy.Exec(insert, "empty image", "2024-12-02", "10:00 AM", "", stamp, stamp).Error)
	require.NoError(t, legacy.Exec(insert, "no image", "2024-12-01", "10:00 AM", nil, stamp, stamp).Error)
	sqlDB, err := legacy.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	db, err := repository.NewDB(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	tasks, err := repository.NewTaskRepository(db).ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"file:///images/a.jpg"}, tasks[0].ImageURIs)
	assert.Nil(t, tasks[1].ImageURIs)
	assert.Nil(t, tasks[2].ImageURIs)

	// A second open must not try to migrate again.
	again, err := repository.NewDB(ctx, path)
	require.NoError(t, err)
	if sqlAgain, err := again.DB(); err == nil {
		_ = sqlAgain.Close()
	}
}

// TestNewDB_CreatesIndexes тестирует создание индексов
func TestNewDB_CreatesIndexes(t *testing.T) {
	db := openTestDB(t)

	var names []string
	require.NoError(t, db.Raw(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'tasks' ORDER BY name`).Scan(&names).Error)
	assert.Contains(t, names, "idx_tasks_date")
	assert.Contains(t, names, "idx_tasks_completed")
}

// TestNewDB_CreatesParentDir тестирует создание каталога для файла базы
func TestNewDB_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tasks.db")
	db, err := repository.NewDB(context.Background(), path)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Close())
}
