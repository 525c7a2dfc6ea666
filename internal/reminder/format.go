package reminder

import (
	"fmt"
	"strings"
)

// Notification priorities.
const (
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

var frequencyLabels = map[string]map[Frequency]string{
	"ar": {
		Daily:   "يومي",
		Weekly:  "أسبوعي",
		Monthly: "شهري",
		Once:    "مرة واحدة",
	},
	"en": {
		Daily:   "Daily",
		Weekly:  "Weekly",
		Monthly: "Monthly",
		Once:    "Once",
	},
}

// Priority is high for emergency-labelled reminders and medium otherwise.
func Priority(def Definition) string {
	if strings.EqualFold(strings.TrimSpace(def.Label), LabelEmergency) {
		return PriorityHigh
	}
	return PriorityMedium
}

// Format renders a one-line description such as "Pills - 08:00 (Daily)".
// Unknown languages fall back to the raw frequency name.
func Format(def Definition, lang string) string {
	freq, ok := frequencyLabels[lang][def.Frequency]
	if !ok {
		freq = string(def.Frequency)
	}
	return fmt.Sprintf("%s - %s (%s)", def.Title, def.ScheduleTime, freq)
}
