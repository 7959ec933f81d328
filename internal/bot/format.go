package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"tasktimeline/internal/model"
	"tasktimeline/internal/service"
)

// maxMessageLen keeps replies under Telegram's 4096 character limit with room for markup.
const maxMessageLen = 3800

var errNoNote = errors.New("note is empty")

var monthGenitive = map[time.Month]string{
	time.January:   "января",
	time.February:  "февраля",
	time.March:     "марта",
	time.April:     "апреля",
	time.May:       "мая",
	time.June:      "июня",
	time.July:      "июля",
	time.August:    "августа",
	time.September: "сентября",
	time.October:   "октября",
	time.November:  "ноября",
	time.December:  "декабря",
}

var monthNominative = map[time.Month]string{
	time.January:   "Январь",
	time.February:  "Февраль",
	time.March:     "Март",
	time.April:     "Апрель",
	time.May:       "Май",
	time.June:      "Июнь",
	time.July:      "Июль",
	time.August:    "Август",
	time.September: "Сентябрь",
	time.October:   "Октябрь",
	time.November:  "Ноябрь",
	time.December:  "Декабрь",
}

func escape(s string) string {
	return html.EscapeString(s)
}

func parseTaskID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

// parseIDAndRest splits "12 rest of text" into the id and the trimmed rest.
func parseIDAndRest(args string) (uint, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, "", fmt.Errorf("missing id")
	}
	id, err := parseTaskID(fields[0])
	if err != nil {
		return 0, "", err
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), fields[0]))
	return id, rest, nil
}

// parseAddArgs reads "[YYYY-MM-DD] note". Without a date the task goes to today.
func parseAddArgs(args string, today time.Time) (date, note string, err error) {
	args = strings.TrimSpace(args)
	fields := strings.Fields(args)
	date = today.Format(model.DateLayout)
	if len(fields) > 0 {
		if _, perr := time.Parse(model.DateLayout, fields[0]); perr == nil {
			date = fields[0]
			args = strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
		}
	}
	if args == "" {
		return "", "", errNoNote
	}
	return date, args, nil
}

// parseDateArg accepts YYYY-MM-DD, "today" or "сегодня", and "off" to clear the selection.
func parseDateArg(arg string, now time.Time) (*time.Time, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	switch arg {
	case "", "off", "all", "все", "сброс":
		return nil, nil
	case "today", "сегодня":
		d := now
		return &d, nil
	}
	d, err := time.ParseInLocation(model.DateLayout, arg, time.Local)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func shortNote(note string, maxLen int) string {
	clean := strings.Join(strings.Fields(note), " ")
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func formatTask(task model.Task) string {
	icon := "⬜️"
	if task.Completed {
		icon = "✅"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <code>#%d</code> %s · %s", icon, task.ID, escape(task.Time), escape(shortNote(task.Note, 120)))
	if n := len(task.ImageURIs); n > 0 {
		fmt.Fprintf(&b, " 📎%d", n)
	}
	return b.String()
}

func dayTitle(day model.TimelineDay) string {
	label := fmt.Sprintf("%d %s", day.Day, day.Month)
	if d, err := time.Parse(model.DateLayout, day.Date); err == nil {
		label = fmt.Sprintf("%d %s", day.Day, monthGenitive[d.Month()])
	}
	if day.IsCurrent {
		return fmt.Sprintf("📍 <b>%s</b> · сегодня", label)
	}
	return fmt.Sprintf("📅 <b>%s</b>", label)
}

// pendingOnly switches the timeline to unfinished tasks and keeps the other flags.
func pendingOnly(filters model.TaskFilters) model.TaskFilters {
	filters.ShowPendingOnly = true
	filters.ShowCompletedOnly = false
	return filters
}

func filterSummary(q service.TimelineQuery) string {
	var parts []string
	if q.SearchText != "" {
		parts = append(parts, fmt.Sprintf("поиск «%s»", escape(q.SearchText)))
	}
	if q.SelectedDate != nil {
		parts = append(parts, "дата "+q.SelectedDate.Local().Format(model.DateLayout))
	}
	if q.Filters.ShowCompletedOnly {
		parts = append(parts, "только выполненные")
	}
	if q.Filters.ShowPendingOnly {
		parts = append(parts, "только активные")
	}
	if q.Filters.ShowDaysWithTasksOnly {
		parts = append(parts, "только дни с задачами")
	}
	if len(parts) == 0 {
		return ""
	}
	return "🔎 " + strings.Join(parts, ", ")
}

// renderTimeline prints days in order. Empty days get a placeholder line so gaps stay visible.
// A timeline longer than one message is cut around today (or the newest day), older and newer
// days being added alternately while they fit.
func renderTimeline(days []model.TimelineDay, q service.TimelineQuery) string {
	var b strings.Builder
	b.WriteString("🗓 <b>Лента задач</b>\n")
	if summary := filterSummary(q); summary != "" {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	if len(days) == 0 {
		b.WriteString("\nНичего не найдено.")
		return b.String()
	}

	sections := make([]string, len(days))
	anchor := len(days) - 1
	for i, day := range days {
		sections[i] = renderDay(day)
		if day.IsCurrent {
			anchor = i
		}
	}

	budget := maxMessageLen - b.Len() - 2*(len(timelineCutNotice)+1)
	from, to := anchor, anchor+1
	used := len(sections[anchor])
	for grew := true; grew; {
		grew = false
		if from > 0 && used+len(sections[from-1]) <= budget {
			from--
			used += len(sections[from])
			grew = true
		}
		if to < len(sections) && used+len(sections[to]) <= budget {
			used += len(sections[to])
			to++
			grew = true
		}
	}

	if from > 0 {
		b.WriteString("\n" + timelineCutNotice)
	}
	for _, section := range sections[from:to] {
		b.WriteString(section)
	}
	if to < len(sections) {
		b.WriteString("\n" + timelineCutNotice)
	}
	return strings.TrimRight(b.String(), "\n")
}

const timelineCutNotice = "…лента обрезана, сузь поиск через /search или /date\n"

func renderDay(day model.TimelineDay) string {
	var section strings.Builder
	section.WriteString("\n")
	section.WriteString(dayTitle(day))
	section.WriteString("\n")
	if len(day.Tasks) == 0 {
		section.WriteString("   ·\n")
	}
	for _, task := range day.Tasks {
		section.WriteString(formatTask(task))
		section.WriteString("\n")
	}
	return section.String()
}

// renderCalendar draws one month with marks on days that have tasks.
func renderCalendar(month time.Time, marked []string, today time.Time) string {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	marks := make(map[string]struct{}, len(marked))
	for _, d := range marked {
		marks[d] = struct{}{}
	}
	todayKey := today.Format(model.DateLayout)

	var b strings.Builder
	fmt.Fprintf(&b, "🗓 <b>%s %d</b>\n<pre>", monthNominative[first.Month()], first.Year())
	b.WriteString(" Пн  Вт  Ср  Чт  Пт  Сб  Вс\n")

	offset := (int(first.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("    ", offset))
	col := offset
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		key := d.Format(model.DateLayout)
		mark := " "
		if _, ok := marks[key]; ok {
			mark = "•"
		}
		if key == todayKey {
			mark = "*"
		}
		fmt.Fprintf(&b, "%3d%s", d.Day(), mark)
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		}
	}
	b.WriteString("</pre>\n• есть задачи   * сегодня")

	var listed []string
	prefix := first.Format("2006-01")
	for _, d := range marked {
		if strings.HasPrefix(d, prefix) {
			listed = append(listed, d[len(d)-2:])
		}
	}
	if len(listed) > 0 {
		fmt.Fprintf(&b, "\nДни с задачами: %s", strings.Join(listed, ", "))
	}
	return b.String()
}

// renderSummary prints today's digest.
func renderSummary(summary service.DaySummary) string {
	var b strings.Builder
	b.WriteString("📋 <b>Сводка на сегодня</b>\n")
	b.WriteString(escape(summary.Date))
	b.WriteString("\n\n🔥 <b>В работе</b>\n")
	if len(summary.Pending) == 0 {
		b.WriteString("— нет открытых задач\n")
	}
	for _, task := range summary.Pending {
		b.WriteString(formatTask(task))
		b.WriteString("\n")
	}
	if len(summary.Overdue) > 0 {
		b.WriteString("\n⚠️ <b>Не закрыто раньше</b>\n")
		for _, task := range summary.Overdue {
			fmt.Fprintf(&b, "%s · %s\n", escape(task.Date), formatTask(task))
		}
	}
	fmt.Fprintf(&b, "\n✅ Выполнено сегодня: %d", len(summary.Completed))
	return b.String()
}
