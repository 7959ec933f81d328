package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	applog "tasktimeline/internal/logger"
)

const createTasksTable = `CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	note TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	image_uris TEXT,
	completed INTEGER DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

var createTaskIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_tasks_date ON tasks(date)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed)`,
}

type columnInfo struct {
	Name string
	Type string
}

// migrateTasks creates the tasks table and upgrades the single-image schema (image_uri) in place.
// Columns are inspected before the DDL runs so a legacy table is recognised.
func migrateTasks(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)

	columns, err := tableColumns(db, "tasks")
	if err != nil {
		return err
	}
	hasOld := columns["image_uri"]
	hasNew := columns["image_uris"]

	if err := db.Exec(createTasksTable).Error; err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	for _, stmt := range createTaskIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create tasks index: %w", err)
		}
	}

	if hasOld && !hasNew {
		applog.Info("Repository: migrating image_uri to image_uris")
		if err := migrateImageURIs(db); err != nil {
			return err
		}
	}
	return nil
}

func tableColumns(db *gorm.DB, table string) (map[string]bool, error) {
	var info []columnInfo
	if err := db.Raw("PRAGMA table_info(" + table + ")").Scan(&info).Error; err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	columns := make(map[string]bool, len(info))
	for _, c := range info {
		columns[c.Name] = true
	}
	return columns, nil
}

type legacyImageRow struct {
	ID       uint
	ImageURI *string
}

func migrateImageURIs(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`ALTER TABLE tasks ADD COLUMN image_uris TEXT`).Error; err != nil {
			return fmt.Errorf("add image_uris column: %w", err)
		}

		var rows []legacyImageRow
		if err := tx.Raw(`SELECT id, image_uri FROM tasks`).Scan(&rows).Error; err != nil {
			return fmt.Errorf("read image_uri: %w", err)
		}

		migrated := 0
		for _, row := range rows {
			if row.ImageURI == nil || *row.ImageURI == "" {
				continue
			}
			encoded, err := json.Marshal([]string{*row.ImageURI})
			if err != nil {
				return fmt.Errorf("encode image_uris: %w", err)
			}
			if err := tx.Exec(`UPDATE tasks SET image_uris = ? WHERE id = ?`, string(encoded), row.ID).Error; err != nil {
				return fmt.Errorf("migrate task %d: %w", row.ID, err)
			}
			migrated++
		}
		applog.Info("Repository: image_uri migration done", zap.Int("tasks", migrated))
		return nil
	})
}
