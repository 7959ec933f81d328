package service

import (
	"sort"
	"strings"
	"time"

	"tasktimeline/internal/model"
)

// emptyWindowRadius is how many days around today an empty timeline shows.
const emptyWindowRadius = 3

// TimelineQuery is the filter state the timeline is projected with.
type TimelineQuery struct {
	SearchText   string
	SelectedDate *time.Time
	Filters      model.TaskFilters
}

// FilterTasks applies search, selected date, completed-only and pending-only in that order.
// The input order is preserved.
func FilterTasks(tasks []model.Task, q TimelineQuery) []model.Task {
	search := strings.ToLower(q.SearchText)
	selected := ""
	if q.SelectedDate != nil {
		selected = q.SelectedDate.Local().Format(model.DateLayout)
	}

	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if search != "" && !strings.Contains(strings.ToLower(task.Note), search) {
			continue
		}
		if selected != "" && task.Date != selected {
			continue
		}
		if q.Filters.ShowCompletedOnly && !task.Completed {
			continue
		}
		if q.Filters.ShowPendingOnly && task.Completed {
			continue
		}
		out = append(out, task)
	}
	return out
}

// BuildTimeline groups the filtered tasks into calendar days.
// Without the days-with-tasks filter the result is contiguous from min(earliest, today)
// to max(latest, today); with no tasks it is a week centred on today.
func BuildTimeline(tasks []model.Task, q TimelineQuery, now time.Time) []model.TimelineDay {
	filtered := FilterTasks(tasks, q)
	today := civilDate(now.Local())
	todayKey := today.Format(model.DateLayout)

	byDate := make(map[string][]model.Task)
	for _, task := range filtered {
		if _, err := time.Parse(model.DateLayout, task.Date); err != nil {
			continue
		}
		byDate[task.Date] = append(byDate[task.Date], task)
	}

	if q.Filters.ShowDaysWithTasksOnly {
		keys := sortedKeys(byDate)
		days := make([]model.TimelineDay, 0, len(keys))
		for _, key := range keys {
			d, _ := time.Parse(model.DateLayout, key)
			days = append(days, newTimelineDay(d, todayKey, byDate[key]))
		}
		return days
	}

	start, end := today, today
	if len(byDate) == 0 {
		start = today.AddDate(0, 0, -emptyWindowRadius)
		end = today.AddDate(0, 0, emptyWindowRadius)
	} else {
		keys := sortedKeys(byDate)
		first, _ := time.Parse(model.DateLayout, keys[0])
		last, _ := time.Parse(model.DateLayout, keys[len(keys)-1])
		if first.Before(start) {
			start = first
		}
		if last.After(end) {
			end = last
		}
	}

	var days []model.TimelineDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, newTimelineDay(d, todayKey, byDate[d.Format(model.DateLayout)]))
	}
	return days
}

// DatesWithTasks returns the distinct task dates in ascending order.
func DatesWithTasks(tasks []model.Task) []string {
	seen := make(map[string][]model.Task, len(tasks))
	for _, task := range tasks {
		seen[task.Date] = nil
	}
	return sortedKeys(seen)
}

func newTimelineDay(d time.Time, todayKey string, tasks []model.Task) model.TimelineDay {
	key := d.Format(model.DateLayout)
	return model.TimelineDay{
		Date:      key,
		Day:       d.Day(),
		Month:     d.Month().String(),
		IsCurrent: key == todayKey,
		Tasks:     tasks,
	}
}

// civilDate drops the clock and zone so day arithmetic is free of DST jumps.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sortedKeys(m map[string][]model.Task) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
