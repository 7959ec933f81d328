package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	applog "tasktimeline/internal/logger"
	"tasktimeline/internal/model"
)

// timestampLayout is ISO 8601 in UTC with milliseconds, e.g. 2024-12-03T10:15:00.000Z.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const defaultOrder = "date DESC, time DESC"

// taskRow mirrors the tasks table as stored.
type taskRow struct {
	ID        uint    `gorm:"column:id;primaryKey"`
	Note      string  `gorm:"column:note"`
	Date      string  `gorm:"column:date"`
	Time      string  `gorm:"column:time"`
	ImageURIs *string `gorm:"column:image_uris"`
	Completed int     `gorm:"column:completed"`
	CreatedAt string  `gorm:"column:created_at"`
	UpdatedAt string  `gorm:"column:updated_at"`
}

func (taskRow) TableName() string { return "tasks" }

// TaskRepository handles CRUD and search for tasks.
type TaskRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used for the time label and timestamps.
func (r *TaskRepository) WithClock(now func() time.Time) *TaskRepository {
	r.now = now
	return r
}

func (r *TaskRepository) Create(ctx context.Context, note, date string, imageURIs []string) (*model.Task, error) {
	note, err := validateNote(note)
	if err != nil {
		return nil, err
	}
	if err := validateDate(date); err != nil {
		return nil, err
	}

	now := r.now()
	stamp := now.UTC().Format(timestampLayout)
	encoded, err := encodeImageURIs(imageURIs)
	if err != nil {
		return nil, err
	}
	row := taskRow{
		Note:      note,
		Date:      date,
		Time:      now.Format(model.TimeLayout),
		ImageURIs: encoded,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	task, err := r.GetByID(ctx, row.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("read created task %d: %w: %w", row.ID, model.ErrStorageFault, model.ErrNotFound)
	}
	return task, err
}

// Update applies the set fields of update. Every call refreshes updated_at.
func (r *TaskRepository) Update(ctx context.Context, id uint, update model.TaskUpdate) (*model.Task, error) {
	if update.Empty() {
		return nil, fmt.Errorf("update task %d: no fields to update: %w", id, model.ErrInvalidArgument)
	}

	fields := make(map[string]interface{}, 4)
	if update.Note.Set {
		note, err := validateNote(update.Note.Value)
		if err != nil {
			return nil, err
		}
		fields["note"] = note
	}
	if update.Date.Set {
		if err := validateDate(update.Date.Value); err != nil {
			return nil, err
		}
		fields["date"] = update.Date.Value
	}
	if update.ImageURIs.Set {
		encoded, err := encodeImageURIs(update.ImageURIs.Value)
		if err != nil {
			return nil, err
		}
		fields["image_uris"] = encoded
	}
	fields["updated_at"] = r.touch()

	if err := r.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a task. Deleting a missing id is not an error.
func (r *TaskRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&taskRow{}).Error; err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

func (r *TaskRepository) ToggleCompletion(ctx context.Context, id uint) (*model.Task, error) {
	fields := map[string]interface{}{
		"completed":  gorm.Expr("NOT completed"),
		"updated_at": r.touch(),
	}
	if err := r.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("toggle task %d: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

func (r *TaskRepository) GetByID(ctx context.Context, id uint) (*model.Task, error) {
	var row taskRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	switch {
	case err == nil:
		return toTask(row)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	default:
		return nil, fmt.Errorf("find task %d: %w", id, err)
	}
}

func (r *TaskRepository) ListAll(ctx context.Context) ([]model.Task, error) {
	return r.list("list tasks", r.db.WithContext(ctx))
}

func (r *TaskRepository) ListByDate(ctx context.Context, date string) ([]model.Task, error) {
	return r.list("list tasks by date", r.db.WithContext(ctx).Where("date = ?", date))
}

// ListByDateRange returns tasks with start <= date <= end.
func (r *TaskRepository) ListByDateRange(ctx context.Context, start, end string) ([]model.Task, error) {
	return r.list("list tasks by range", r.db.WithContext(ctx).Where("date >= ? AND date <= ?", start, end))
}

// Search matches query as a case-insensitive substring of the note.
func (r *TaskRepository) Search(ctx context.Context, query string) ([]model.Task, error) {
	pattern := "%" + escapeLike(query) + "%"
	return r.list("search tasks", r.db.WithContext(ctx).Where(`note LIKE ? ESCAPE '\'`, pattern))
}

// DatesWithTasks returns every date that has at least one task, ascending.
func (r *TaskRepository) DatesWithTasks(ctx context.Context) ([]string, error) {
	var dates []string
	if err := r.db.WithContext(ctx).Model(&taskRow{}).Distinct().Order("date ASC").Pluck("date", &dates).Error; err != nil {
		return nil, fmt.Errorf("list task dates: %w", err)
	}
	return dates, nil
}

func (r *TaskRepository) list(op string, db *gorm.DB) ([]model.Task, error) {
	var rows []taskRow
	if err := db.Order(defaultOrder).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tasks := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		task, err := toTask(row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

// touch keeps updated_at >= created_at even if the wall clock moved backwards.
func (r *TaskRepository) touch() clause.Expr {
	return gorm.Expr("MAX(created_at, ?)", r.now().UTC().Format(timestampLayout))
}

func toTask(row taskRow) (*model.Task, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("task %d created_at %q: %w", row.ID, row.CreatedAt, model.ErrStorageFault)
	}
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("task %d updated_at %q: %w", row.ID, row.UpdatedAt, model.ErrStorageFault)
	}
	return &model.Task{
		ID:        row.ID,
		Note:      row.Note,
		Date:      row.Date,
		Time:      row.Time,
		ImageURIs: decodeImageURIs(row.ID, row.ImageURIs),
		Completed: row.Completed != 0,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func encodeImageURIs(uris []string) (*string, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(uris)
	if err != nil {
		return nil, fmt.Errorf("encode image uris: %w", err)
	}
	s := string(data)
	return &s, nil
}

// decodeImageURIs never fails a read: malformed JSON is logged and treated as no attachments.
func decodeImageURIs(id uint, raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var uris []string
	if err := json.Unmarshal([]byte(*raw), &uris); err != nil {
		applog.Warn("Repository: malformed image_uris", zap.Uint("task_id", id), zap.Error(err))
		return nil
	}
	if len(uris) == 0 {
		return nil
	}
	return uris
}

func validateNote(note string) (string, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return "", fmt.Errorf("note is required: %w", model.ErrInvalidArgument)
	}
	return note, nil
}

func validateDate(date string) error {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return fmt.Errorf("date %q must be YYYY-MM-DD: %w", date, model.ErrInvalidArgument)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
