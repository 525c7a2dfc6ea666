// Package summary builds the daily digest of a user's logged entries and
// triggered reminders.
package summary

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lazypower/memoria/internal/classify"
	"github.com/lazypower/memoria/internal/store"
)

// DateLayout is the format of DailySummary.Date.
const DateLayout = "2006-01-02"

const (
	maxHighlights  = 5
	maxSnippetRune = 100
	labelReminder  = "reminder"
)

// Labels whose entries are surfaced as highlights.
var priorityLabels = []string{classify.Emergency, classify.Appointment, classify.Medicine}

// Input is everything Generate summarizes for one user and day.
type Input struct {
	UserID    string
	Day       time.Time // any instant on the day; its location sets the day bounds
	Language  string    // "ar" or "en"
	Entries   []store.Entry
	Reminders []store.Notification
}

// Generate builds the summary for in. It does not touch the store.
func Generate(in Input) store.DailySummary {
	loc := in.Day.Location()
	entries := slices.Clone(in.Entries)
	slices.SortStableFunc(entries, func(a, b store.Entry) int { return a.Timestamp.Compare(b.Timestamp) })
	counts := labelCounts(entries)

	return store.DailySummary{
		UserID:          in.UserID,
		Date:            in.Day.Format(DateLayout),
		Language:        in.Language,
		Summary:         summaryText(entries, counts, len(in.Reminders), in.Language),
		Highlights:      highlights(entries),
		KeyEvents:       keyEvents(entries, in.Reminders, loc, in.Language),
		Statistics:      statistics(entries, counts, len(in.Reminders)),
		Recommendations: recommendations(entries, counts, in.Language),
	}
}

// Issues lists what makes s an empty digest. A nil result means s has
// content worth showing.
func Issues(s store.DailySummary) []string {
	var issues []string
	if strings.TrimSpace(s.Summary) == "" {
		issues = append(issues, "summary text is empty")
	}
	if len(s.KeyEvents) == 0 {
		issues = append(issues, "no key events found")
	}
	if len(s.Statistics) == 0 {
		issues = append(issues, "no statistics available")
	}
	return issues
}

func labelCounts(entries []store.Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		for _, l := range e.Labels {
			counts[l]++
		}
	}
	return counts
}

func statistics(entries []store.Entry, counts map[string]int, reminders int) map[string]int {
	stats := map[string]int{
		"total_entries":       len(entries),
		"audio_entries":       0,
		"image_entries":       0,
		"text_entries":        0,
		"reminders_triggered": reminders,
	}
	for _, e := range entries {
		stats[string(e.Type)+"_entries"]++
	}
	for l, n := range counts {
		stats["label_"+l] = n
	}
	return stats
}

func summaryText(entries []store.Entry, counts map[string]int, reminders int, lang string) string {
	ar := lang == "ar"
	if len(entries) == 0 && reminders == 0 {
		if ar {
			return "لا توجد ملاحظات مسجلة في هذا اليوم"
		}
		return "No entries recorded today"
	}

	var lines []string
	if ar {
		lines = append(lines, fmt.Sprintf("ملخص اليوم: تم تسجيل %d ملاحظات", len(entries)))
	} else {
		lines = append(lines, fmt.Sprintf("Summary: %d entries recorded today", len(entries)))
	}

	if len(counts) > 0 {
		if ar {
			lines = append(lines, "الفئات المسجلة:")
		} else {
			lines = append(lines, "Categories recorded:")
		}
		labels := make([]string, 0, len(counts))
		for l := range counts {
			labels = append(labels, l)
		}
		slices.Sort(labels)
		for _, l := range labels {
			lines = append(lines, fmt.Sprintf("  • %s: %d", l, counts[l]))
		}
	}

	if ar {
		if counts[classify.Medicine] > 0 {
			lines = append(lines, "✓ تم تسجيل تناول الأدوية")
		}
		if counts[classify.Appointment] > 0 {
			lines = append(lines, "✓ تم تسجيل مواعيد طبية")
		}
		if counts[classify.Family] > 0 {
			lines = append(lines, "✓ تم تسجيل تفاعلات عائلية")
		}
	}

	if reminders > 0 {
		if ar {
			lines = append(lines, fmt.Sprintf("تم تشغيل %d تذكيرات", reminders))
		} else {
			lines = append(lines, fmt.Sprintf("Reminders triggered: %d", reminders))
		}
	}
	return strings.Join(lines, "\n")
}

func highlights(entries []store.Entry) []string {
	out := []string{}
	for _, e := range entries {
		if len(out) == maxHighlights {
			break
		}
		if e.Transcript == "" || !slices.ContainsFunc(e.Labels, isPriority) {
			continue
		}
		out = append(out, snippet(e.Transcript))
	}
	return out
}

func isPriority(label string) bool {
	return slices.Contains(priorityLabels, label)
}

func keyEvents(entries []store.Entry, reminders []store.Notification, loc *time.Location, lang string) []store.KeyEvent {
	type timed struct {
		at time.Time
		ev store.KeyEvent
	}
	var all []timed

	fallback := classify.General
	if lang == "ar" {
		fallback = "عام"
	}
	for _, e := range entries {
		label := fallback
		if len(e.Labels) > 0 {
			label = e.Labels[0]
		}
		desc := snippet(e.Transcript)
		if desc == "" {
			desc = string(e.Type) + " entry"
		}
		all = append(all, timed{e.Timestamp, store.KeyEvent{Label: label, Description: desc}})
	}
	for _, n := range reminders {
		all = append(all, timed{n.CreatedAt, store.KeyEvent{Label: labelReminder, Description: n.Title}})
	}
	slices.SortStableFunc(all, func(a, b timed) int { return a.at.Compare(b.at) })

	out := make([]store.KeyEvent, len(all))
	for i, t := range all {
		t.ev.Time = t.at.In(loc).Format("15:04")
		out[i] = t.ev
	}
	return out
}

func recommendations(entries []store.Entry, counts map[string]int, lang string) []string {
	var out []string
	if lang == "ar" {
		if counts[classify.Medicine] == 0 {
			out = append(out, "تذكر: لم تسجل تناول أي أدوية اليوم")
		}
		if counts[classify.Food] == 0 {
			out = append(out, "تذكر: لم تسجل تناول وجبات اليوم")
		}
		if len(entries) < 3 {
			out = append(out, "حاول تسجيل المزيد من الملاحظات لتتبع أفضل")
		}
		if counts[classify.Emergency] > 0 {
			out = append(out, "⚠️ تم تسجيل حالة طوارئ - تأكد من الاتصال بالمسؤولين")
		}
		return out
	}

	if counts[classify.Medicine] == 0 {
		out = append(out, "Reminder: No medication recorded today")
	}
	if counts[classify.Food] == 0 {
		out = append(out, "Reminder: No meals recorded today")
	}
	if len(entries) < 3 {
		out = append(out, "Try recording more entries for better tracking")
	}
	if counts[classify.Emergency] > 0 {
		out = append(out, "⚠️ Emergency recorded - ensure proper authorities are notified")
	}
	return out
}

// snippet cuts s to maxSnippetRune characters.
func snippet(s string) string {
	if utf8.RuneCountInString(s) <= maxSnippetRune {
		return s
	}
	return string([]rune(s)[:maxSnippetRune])
}
