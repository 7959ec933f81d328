package model

import "time"

const (
	// DateLayout is the calendar date format stored in tasks.date.
	DateLayout = "2006-01-02"
	// TimeLayout is the display time captured when a task is created.
	TimeLayout = "03:04 PM"
)

// Task represents a single item on the timeline.
type Task struct {
	ID        uint
	Note      string
	Date      string
	Time      string
	ImageURIs []string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Field is an optional update value. Set distinguishes "leave untouched" from "set to Value",
// so a set ImageURIs field with a nil Value clears attachments.
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a set field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// TaskUpdate is a partial update for a task. Unset fields are left as they are.
type TaskUpdate struct {
	Note      Field[string]
	Date      Field[string]
	ImageURIs Field[[]string]
}

// Empty reports whether no field is set.
func (u TaskUpdate) Empty() bool {
	return !u.Note.Set && !u.Date.Set && !u.ImageURIs.Set
}

// TaskFilters are the structured timeline filters. ShowCompletedOnly and ShowPendingOnly are exclusive.
type TaskFilters struct {
	ShowCompletedOnly     bool
	ShowPendingOnly       bool
	ShowDaysWithTasksOnly bool
}

// TimelineDay is one calendar day of the timeline projection.
type TimelineDay struct {
	Date      string
	Day       int
	Month     string
	IsCurrent bool
	Tasks     []Task
}
