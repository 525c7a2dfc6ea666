package reminder

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValid(t *testing.T) {
	require.NoError(t, Validate(daily("08:00")))
}

func TestValidateListsEveryIssue(t *testing.T) {
	def := Definition{
		Title:              "  ",
		ScheduleTime:       "25:99",
		Frequency:          Weekly,
		NotificationMethod: "carrier-pigeon",
	}

	err := Validate(def)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Issues, 4)
	assert.Contains(t, err.Error(), "title is required")
	assert.Contains(t, err.Error(), `invalid schedule time "25:99"`)
	assert.Contains(t, err.Error(), "at least one day")
	assert.Contains(t, err.Error(), "notification method")
}

func TestValidateDayRange(t *testing.T) {
	def := daily("08:00")
	def.Frequency = Weekly
	def.DaysOfWeek = []int{0, 7, -1}

	var verr *ValidationError
	require.ErrorAs(t, Validate(def), &verr)
	assert.Len(t, verr.Issues, 2)
}

func TestValidateUnknownFrequency(t *testing.T) {
	def := daily("08:00")
	def.Frequency = "fortnightly"

	var verr *ValidationError
	require.ErrorAs(t, Validate(def), &verr)
	assert.Equal(t, []string{`invalid frequency "fortnightly"`}, verr.Issues)
}

func TestValidateTitleLength(t *testing.T) {
	def := daily("08:00")
	def.Title = strings.Repeat("x", maxTitleChars+1)
	assert.Error(t, Validate(def))
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	def := daily("08:00")
	def.Title = strings.Repeat("د", maxTitleChars)
	def.Label = strings.Repeat("ط", maxLabelChars)
	require.NoError(t, Validate(def))

	def.Title = strings.Repeat("د", maxTitleChars+1)
	def.Label = strings.Repeat("ط", maxLabelChars+1)
	var verr *ValidationError
	require.ErrorAs(t, Validate(def), &verr)
	assert.Equal(t, []string{
		"title too long (256 chars, max 255)",
		"label too long (101 chars, max 100)",
	}, verr.Issues)
}

func TestNormalize(t *testing.T) {
	def := Definition{
		Title:        "  Call Sara  ",
		Label:        " Family ",
		ScheduleTime: " 18:00 ",
		DaysOfWeek:   []int{5, 1, 5, 3},
	}

	n := Normalize(def)
	assert.Equal(t, "Call Sara", n.Title)
	assert.Equal(t, "family", n.Label)
	assert.Equal(t, "18:00", n.ScheduleTime)
	assert.Equal(t, Daily, n.Frequency)
	assert.Equal(t, MethodBoth, n.NotificationMethod)
	assert.Equal(t, []int{1, 3, 5}, n.DaysOfWeek)
	assert.Equal(t, []int{5, 1, 5, 3}, def.DaysOfWeek, "input must not be modified")
}

func TestNormalizeTruncatesDescription(t *testing.T) {
	def := daily("08:00")
	def.Description = strings.Repeat("word ", 1000)

	n := Normalize(def)
	assert.LessOrEqual(t, len(n.Description), maxDescriptionChars)
	assert.False(t, strings.HasSuffix(n.Description, " "))
}

func TestPriority(t *testing.T) {
	def := daily("08:00")
	assert.Equal(t, PriorityMedium, Priority(def))

	def.Label = "Emergency"
	assert.Equal(t, PriorityHigh, Priority(def))
}

func TestFormat(t *testing.T) {
	def := daily("08:00")
	assert.Equal(t, "Take pills - 08:00 (Daily)", Format(def, "en"))
	assert.Equal(t, "Take pills - 08:00 (يومي)", Format(def, "ar"))
	assert.Equal(t, "Take pills - 08:00 (daily)", Format(def, "fr"))
}

func TestNormalizeTruncatesMultibyteDescription(t *testing.T) {
	def := daily("08:00")
	def.Description = "x" + strings.Repeat("ب", 3000)

	n := Normalize(def)
	assert.Equal(t, def.Description, n.Description, "3001 characters fit the limit")

	def.Description = "x" + strings.Repeat("ب", maxDescriptionChars+500)
	n = Normalize(def)
	assert.True(t, utf8.ValidString(n.Description))
	assert.Equal(t, maxDescriptionChars, utf8.RuneCountInString(n.Description))
}

func TestNormalizeTruncatesAtWordBoundary(t *testing.T) {
	def := daily("08:00")
	def.Description = strings.Repeat("ب", maxDescriptionChars-10) + " " + strings.Repeat("ج", 50)

	n := Normalize(def)
	assert.True(t, utf8.ValidString(n.Description))
	assert.Equal(t, maxDescriptionChars-10, utf8.RuneCountInString(n.Description))
}
