package service

import (
	"time"

	"tasktimeline/internal/model"
)

// DaySummary is the digest for one day: its tasks split by status, plus unfinished tasks from earlier days.
type DaySummary struct {
	Date      string
	Pending   []model.Task
	Completed []model.Task
	Overdue   []model.Task
}

// Summarize builds the digest for the local calendar day of now. Cache order is kept.
func Summarize(tasks []model.Task, now time.Time) DaySummary {
	today := now.Local().Format(model.DateLayout)
	summary := DaySummary{Date: today}
	for _, task := range tasks {
		switch {
		case task.Date == today && task.Completed:
			summary.Completed = append(summary.Completed, task)
		case task.Date == today:
			summary.Pending = append(summary.Pending, task)
		case task.Date < today && !task.Completed:
			summary.Overdue = append(summary.Overdue, task)
		}
	}
	return summary
}

// Summary is the digest for today built from the cache.
func (s *TaskStore) Summary() DaySummary {
	return Summarize(s.Tasks(), s.now())
}
