package reminder

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Size limits, matching the column widths in the store.
const (
	maxTitleChars       = 255
	maxLabelChars       = 100
	maxDescriptionChars = 4000
)

// ValidationError lists every constraint a definition violates.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid reminder: " + strings.Join(e.Issues, "; ")
}

// Normalize trims text fields, fills defaults, and sorts and de-duplicates
// DaysOfWeek. Overlong descriptions are cut at a word boundary.
func Normalize(def Definition) Definition {
	def = def.Clone()
	def.Title = strings.TrimSpace(def.Title)
	def.Label = strings.ToLower(strings.TrimSpace(def.Label))
	def.Description = strings.TrimSpace(def.Description)
	def.ScheduleTime = strings.TrimSpace(def.ScheduleTime)

	if def.Frequency == "" {
		def.Frequency = Daily
	}
	if def.NotificationMethod == "" {
		def.NotificationMethod = MethodBoth
	}
	if utf8.RuneCountInString(def.Description) > maxDescriptionChars {
		def.Description = truncateClean(def.Description, maxDescriptionChars)
	}
	if len(def.DaysOfWeek) > 0 {
		slices.Sort(def.DaysOfWeek)
		def.DaysOfWeek = slices.Compact(def.DaysOfWeek)
	}
	return def
}

// Validate checks def and reports all problems at once.
func Validate(def Definition) error {
	var issues []string

	if strings.TrimSpace(def.Title) == "" {
		issues = append(issues, "title is required")
	} else if n := utf8.RuneCountInString(def.Title); n > maxTitleChars {
		issues = append(issues, fmt.Sprintf("title too long (%d chars, max %d)", n, maxTitleChars))
	}
	if n := utf8.RuneCountInString(def.Label); n > maxLabelChars {
		issues = append(issues, fmt.Sprintf("label too long (%d chars, max %d)", n, maxLabelChars))
	}

	if _, err := ParseClock(def.ScheduleTime); err != nil {
		issues = append(issues, fmt.Sprintf("invalid schedule time %q (use HH:MM)", def.ScheduleTime))
	}

	if !def.Frequency.Valid() {
		issues = append(issues, fmt.Sprintf("invalid frequency %q", def.Frequency))
	}
	if def.Frequency == Weekly && len(def.DaysOfWeek) == 0 {
		issues = append(issues, "weekly reminders must have at least one day selected")
	}
	for _, d := range def.DaysOfWeek {
		if d < 0 || d > 6 {
			issues = append(issues, fmt.Sprintf("day of week %d out of range 0-6", d))
		}
	}

	switch def.NotificationMethod {
	case MethodSound, MethodText, MethodBoth:
	default:
		issues = append(issues, fmt.Sprintf("invalid notification method %q", def.NotificationMethod))
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// truncateClean truncates s to maxLen characters, cutting at the last word
// boundary within the final 200 characters to avoid mid-word breaks.
func truncateClean(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	cut, n := 0, 0
	for i := range s {
		if n == maxLen {
			cut = i
			break
		}
		n++
	}
	truncated := s[:cut]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx >= 0 &&
		utf8.RuneCountInString(truncated[:idx]) > maxLen-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
