package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimeline/internal/model"
	"tasktimeline/internal/service"
)

// TestParseAddArgs тестирует разбор команды добавления
func TestParseAddArgs(t *testing.T) {
	today := time.Date(2024, 12, 3, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name     string
		args     string
		wantDate string
		wantNote string
		wantErr  bool
	}{
		{name: "note only", args: "Купить молоко", wantDate: "2024-12-03", wantNote: "Купить молоко"},
		{name: "date and note", args: "2024-12-10  call mom ", wantDate: "2024-12-10", wantNote: "call mom"},
		{name: "date only", args: "2024-12-10", wantErr: true},
		{name: "empty", args: "   ", wantErr: true},
		{name: "date-like text stays in note", args: "2024-13-40 strange", wantDate: "2024-12-03", wantNote: "2024-13-40 strange"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, note, err := parseAddArgs(tt.args, today)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantNote, note)
		})
	}
}

// TestParseIDAndRest тестирует разбор id и текста
func TestParseIDAndRest(t *testing.T) {
	id, rest, err := parseIDAndRest(" 12   new text here ")
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)
	assert.Equal(t, "new text here", rest)

	_, _, err = parseIDAndRest("abc text")
	assert.Error(t, err)

	_, _, err = parseIDAndRest("")
	assert.Error(t, err)
}

// TestParseDateArg тестирует разбор даты для фильтра
func TestParseDateArg(t *testing.T) {
	now := time.Date(2024, 12, 3, 10, 0, 0, 0, time.Local)

	d, err := parseDateArg("off", now)
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = parseDateArg("today", now)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2024-12-03", d.Format(model.DateLayout))

	d, err = parseDateArg("2024-01-05", now)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2024-01-05", d.Format(model.DateLayout))

	_, err = parseDateArg("05.01.2024", now)
	assert.Error(t, err)
}

// TestFormatTask тестирует вывод одной задачи
func TestFormatTask(t *testing.T) {
	task := model.Task{ID: 7, Note: "<b>bold</b> & co", Time: "09:25 AM", ImageURIs: []string{"a", "b"}}
	out := formatTask(task)
	assert.Contains(t, out, "⬜️")
	assert.Contains(t, out, "#7")
	assert.Contains(t, out, "&lt;b&gt;bold&lt;/b&gt; &amp; co")
	assert.Contains(t, out, "📎2")

	task.Completed = true
	task.ImageURIs = nil
	out = formatTask(task)
	assert.Contains(t, out, "✅")
	assert.NotContains(t, out, "📎")
}

// TestShortNote тестирует сокращение длинных заметок
func TestShortNote(t *testing.T) {
	assert.Equal(t, "a b", shortNote(" a\n b ", 10))
	assert.Equal(t, "абв…", shortNote("абвгдеж", 4))
}

// TestPendingOnly тестирует кнопку «Активные» поверх текущих фильтров
func TestPendingOnly(t *testing.T) {
	got := pendingOnly(model.TaskFilters{ShowCompletedOnly: true, ShowDaysWithTasksOnly: true})
	assert.Equal(t, model.TaskFilters{ShowPendingOnly: true, ShowDaysWithTasksOnly: true}, got)

	got = pendingOnly(model.TaskFilters{})
	assert.Equal(t, model.TaskFilters{ShowPendingOnly: true}, got)
}

// TestRenderTimeline тестирует вывод ленты
func TestRenderTimeline(t *testing.T) {
	days := []model.TimelineDay{
		{Date: "2024-01-01", Day: 1, Month: "January", Tasks: []model.Task{{ID: 1, Note: "first", Time: "10:00 AM"}}},
		{Date: "2024-01-02", Day: 2, Month: "January"},
		{Date: "2024-01-03", Day: 3, Month: "January", IsCurrent: true},
	}
	q := service.TimelineQuery{SearchText: "fir", Filters: model.TaskFilters{ShowPendingOnly: true}}

	out := renderTimeline(days, q)
	assert.Contains(t, out, "1 января")
	assert.Contains(t, out, "3 января</b> · сегодня")
	assert.Contains(t, out, "поиск «fir»")
	assert.Contains(t, out, "только активные")
	assert.Contains(t, out, "first")

	empty := renderTimeline(nil, service.TimelineQuery{})
	assert.Contains(t, empty, "Ничего не найдено")
}

// TestRenderTimelineTruncates тестирует обрезку длинной ленты
func TestRenderTimelineTruncates(t *testing.T) {
	var days []model.TimelineDay
	for i := 1; i <= 28; i++ {
		d := model.TimelineDay{Date: time.Date(2024, 2, i, 0, 0, 0, 0, time.UTC).Format(model.DateLayout), Day: i, Month: "February"}
		for j := 0; j < 5; j++ {
			d.Tasks = append(d.Tasks, model.Task{ID: uint(i*10 + j), Note: strings.Repeat("x", 100), Time: "10:00 AM"})
		}
		days = append(days, d)
	}
	out := renderTimeline(days, service.TimelineQuery{})
	assert.LessOrEqual(t, len(out), maxMessageLen)
	assert.Contains(t, out, "28 февраля")
	assert.NotContains(t, out, "<b>1 февраля</b>")
	assert.Equal(t, 1, strings.Count(out, "лента обрезана"))

	days[9].IsCurrent = true
	out = renderTimeline(days, service.TimelineQuery{})
	assert.LessOrEqual(t, len(out), maxMessageLen)
	assert.Contains(t, out, "10 февраля</b> · сегодня")
	assert.Contains(t, out, "#100")
	assert.NotContains(t, out, "<b>1 февраля</b>")
	assert.NotContains(t, out, "28 февраля")
	assert.Equal(t, 2, strings.Count(out, "лента обрезана"))
}

// TestRenderTimelineKeepsToday тестирует, что длинная лента всегда показывает сегодня
func TestRenderTimelineKeepsToday(t *testing.T) {
	tasks := []model.Task{
		{ID: 2, Note: "today task", Date: "2024-12-03", Time: "10:00 AM"},
		{ID: 1, Note: "old task", Date: "2024-01-01", Time: "09:00 AM"},
	}
	now := time.Date(2024, 12, 3, 12, 0, 0, 0, time.Local)
	days := service.BuildTimeline(tasks, service.TimelineQuery{}, now)
	require.Greater(t, len(days), 300)

	out := renderTimeline(days, service.TimelineQuery{})
	assert.LessOrEqual(t, len(out), maxMessageLen)
	assert.Contains(t, out, "3 декабря</b> · сегодня")
	assert.Contains(t, out, "today task")
	assert.NotContains(t, out, "old task")
	assert.Contains(t, out, "лента обрезана")
}

// TestRenderCalendar тестирует календарь с отметками
func TestRenderCalendar(t *testing.T) {
	month := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 3, 9, 0, 0, 0, time.Local)

	out := renderCalendar(month, []string{"2023-12-31", "2024-01-01", "2024-01-05"}, today)
	assert.Contains(t, out, "Январь 2024")
	assert.Contains(t, out, "  1•")
	assert.Contains(t, out, "  3*")
	assert.Contains(t, out, "  5•")
	assert.Contains(t, out, "Дни с задачами: 01, 05")
	assert.NotContains(t, out, "31•")
}

// TestRenderSummary тестирует вывод сводки
func TestRenderSummary(t *testing.T) {
	out := renderSummary(service.DaySummary{Date: "2024-01-03"})
	assert.Contains(t, out, "нет открытых задач")
	assert.Contains(t, out, "Выполнено сегодня: 0")
	assert.NotContains(t, out, "Не закрыто раньше")

	out = renderSummary(service.DaySummary{
		Date:      "2024-01-03",
		Pending:   []model.Task{{ID: 1, Note: "today task", Time: "10:00 AM"}},
		Overdue:   []model.Task{{ID: 2, Note: "old task", Date: "2024-01-01", Time: "09:00 AM"}},
		Completed: []model.Task{{ID: 3, Completed: true}},
	})
	assert.Contains(t, out, "today task")
	assert.Contains(t, out, "2024-01-01 · ")
	assert.Contains(t, out, "old task")
	assert.Contains(t, out, "Выполнено сегодня: 1")
}
