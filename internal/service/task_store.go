package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tasktimeline/internal/logger"
	"tasktimeline/internal/model"
)

// TaskRepository is the query layer the store writes through.
type TaskRepository interface {
	Create(ctx context.Context, note, date string, imageURIs []string) (*model.Task, error)
	Update(ctx context.Context, id uint, update model.TaskUpdate) (*model.Task, error)
	Delete(ctx context.Context, id uint) error
	ToggleCompletion(ctx context.Context, id uint) (*model.Task, error)
	GetByID(ctx context.Context, id uint) (*model.Task, error)
	ListAll(ctx context.Context) ([]model.Task, error)
}

// ImageStorage removes attachment files.
type ImageStorage interface {
	Delete(ctx context.Context, uri string) error
}

// TaskStore is the in-memory view of all tasks plus the active filters.
// Every mutation goes through the repository first and is mirrored into the cache afterwards.
// The mutex guards the fields only; two actions on the same task may still interleave.
type TaskStore struct {
	repo   TaskRepository
	images ImageStorage
	now    func() time.Time
	loads  singleflight.Group

	mu           sync.RWMutex
	tasks        []model.Task
	searchText   string
	selectedDate *time.Time
	filters      model.TaskFilters
}

func NewTaskStore(repo TaskRepository, images ImageStorage) *TaskStore {
	return &TaskStore{repo: repo, images: images, now: time.Now}
}

// WithClock replaces the clock used to decide which day is today.
func (s *TaskStore) WithClock(now func() time.Time) *TaskStore {
	s.now = now
	return s
}

// LoadTasks replaces the cache with every stored task. Failures are logged and the cache is kept.
func (s *TaskStore) LoadTasks(ctx context.Context) {
	_, err, _ := s.loads.Do("tasks", func() (interface{}, error) {
		tasks, err := s.repo.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.tasks = tasks
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		logger.Error("TaskStore: load tasks failed", err)
		return
	}
	logger.Info("TaskStore: tasks loaded", zap.Int("count", len(s.Tasks())))
}

// AddTask creates a task and puts it at the front of the cache.
func (s *TaskStore) AddTask(ctx context.Context, note, date string, imageURIs []string) (*model.Task, error) {
	task, err := s.repo.Create(ctx, note, date, imageURIs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tasks = append([]model.Task{*task}, s.tasks...)
	s.mu.Unlock()
	return task, nil
}

// UpdateTask applies update. When the attachment list is replaced, files dropped from it are
// removed once the row is written, unless another task still references them.
func (s *TaskStore) UpdateTask(ctx context.Context, id uint, update model.TaskUpdate) (*model.Task, error) {
	var dropped []string
	if update.ImageURIs.Set {
		if current, ok := s.cached(id); ok {
			dropped = droppedImages(current.ImageURIs, update.ImageURIs.Value)
		}
	}

	task, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.replace(*task)
	s.deleteImages(ctx, id, dropped)
	return task, nil
}

func droppedImages(current, next []string) []string {
	keep := make(map[string]struct{}, len(next))
	for _, uri := range next {
		keep[uri] = struct{}{}
	}
	var dropped []string
	for _, uri := range current {
		if _, ok := keep[uri]; !ok {
			dropped = append(dropped, uri)
		}
	}
	return dropped
}

// DeleteTask removes the row, then its unshared attachment files, then the cache entry.
// File errors are logged and never returned.
func (s *TaskStore) DeleteTask(ctx context.Context, id uint) error {
	var uris []string
	if task, ok := s.cached(id); ok {
		uris = task.ImageURIs
	} else if task, err := s.repo.GetByID(ctx, id); err == nil {
		uris = task.ImageURIs
	} else if !errors.Is(err, model.ErrNotFound) {
		logger.Warn("TaskStore: resolve task images failed", zap.Uint("task_id", id), zap.Error(err))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.deleteImages(ctx, id, uris)

	s.mu.Lock()
	kept := make([]model.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.ID != id {
			kept = append(kept, task)
		}
	}
	s.tasks = kept
	s.mu.Unlock()
	return nil
}

func (s *TaskStore) ToggleCompletion(ctx context.Context, id uint) (*model.Task, error) {
	task, err := s.repo.ToggleCompletion(ctx, id)
	if err != nil {
		return nil, err
	}
	s.replace(*task)
	return task, nil
}

func (s *TaskStore) SetSearchText(text string) {
	s.mu.Lock()
	s.searchText = text
	s.mu.Unlock()
}

// SetSelectedDate narrows the timeline to one day. Nil clears the selection.
func (s *TaskStore) SetSelectedDate(date *time.Time) {
	var selected *time.Time
	if date != nil {
		d := *date
		selected = &d
	}
	s.mu.Lock()
	s.selectedDate = selected
	s.mu.Unlock()
}

// SetFilters replaces the filter flags. Completed-only and pending-only are exclusive:
// if both are requested, the one that was not active before wins.
func (s *TaskStore) SetFilters(filters model.TaskFilters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if filters.ShowCompletedOnly && filters.ShowPendingOnly {
		if s.filters.ShowCompletedOnly {
			filters.ShowCompletedOnly = false
		} else {
			filters.ShowPendingOnly = false
		}
	}
	s.filters = filters
}

func (s *TaskStore) ResetFilters() {
	s.mu.Lock()
	s.filters = model.TaskFilters{}
	s.mu.Unlock()
}

// Tasks returns a copy of the cache in stored order.
func (s *TaskStore) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Task returns the cached task with id.
func (s *TaskStore) Task(id uint) (model.Task, bool) {
	return s.cached(id)
}

func (s *TaskStore) Query() TimelineQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := TimelineQuery{SearchText: s.searchText, Filters: s.filters}
	if s.selectedDate != nil {
		d := *s.selectedDate
		q.SelectedDate = &d
	}
	return q
}

func (s *TaskStore) FilteredTasks() []model.Task {
	return FilterTasks(s.Tasks(), s.Query())
}

func (s *TaskStore) Timeline() []model.TimelineDay {
	return BuildTimeline(s.Tasks(), s.Query(), s.now())
}

// DatesWithTasks lists the days that have at least one cached task, for calendar marks.
func (s *TaskStore) DatesWithTasks() []string {
	return DatesWithTasks(s.Tasks())
}

func (s *TaskStore) cached(id uint) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, task := range s.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

func (s *TaskStore) replace(updated model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == updated.ID {
			s.tasks[i] = updated
			return
		}
	}
}

// deleteImages removes each uri that no other cached task references. Errors are logged per file.
func (s *TaskStore) deleteImages(ctx context.Context, ownerID uint, uris []string) {
	if s.images == nil || len(uris) == 0 {
		return
	}
	shared := s.referencedByOthers(ownerID)
	for _, uri := range uris {
		if _, ok := shared[uri]; ok {
			continue
		}
		if err := s.images.Delete(ctx, uri); err != nil {
			logger.Warn("TaskStore: delete image failed",
				zap.Uint("task_id", ownerID), zap.String("uri", uri), zap.Error(err))
		}
	}
}

func (s *TaskStore) referencedByOthers(ownerID uint) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make(map[string]struct{})
	for _, task := range s.tasks {
		if task.ID == ownerID {
			continue
		}
		for _, uri := range task.ImageURIs {
			refs[uri] = struct{}{}
		}
	}
	return refs
}
