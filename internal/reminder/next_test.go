package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTriggerDaily(t *testing.T) {
	def := daily("07:30")

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"earlier same day", at(2024, 1, 8, 6, 0, 0), at(2024, 1, 8, 7, 30, 0)},
		{"exactly at schedule", at(2024, 1, 8, 7, 30, 0), at(2024, 1, 9, 7, 30, 0)},
		{"later same day", at(2024, 1, 8, 22, 0, 0), at(2024, 1, 9, 7, 30, 0)},
		{"month rollover", at(2024, 1, 31, 8, 0, 0), at(2024, 2, 1, 7, 30, 0)},
		{"year rollover", at(2023, 12, 31, 8, 0, 0), at(2024, 1, 1, 7, 30, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextTrigger(def, tt.from)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestNextTriggerWeekly(t *testing.T) {
	def := daily("09:00")
	def.Frequency = Weekly
	def.DaysOfWeek = []int{1, 3, 5}

	// Tuesday morning -> Wednesday.
	got, err := NextTrigger(def, at(2024, 1, 9, 8, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(2024, 1, 10, 9, 0, 0), *got)

	// Friday after the slot -> Monday.
	got, err = NextTrigger(def, at(2024, 1, 12, 9, 30, 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(2024, 1, 15, 9, 0, 0), *got)
	assert.Equal(t, time.Monday, got.Weekday())
}

func TestNextTriggerWeeklyNoDays(t *testing.T) {
	def := daily("09:00")
	def.Frequency = Weekly

	got, err := NextTrigger(def, at(2024, 1, 9, 8, 0, 0))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNextTriggerMonthly(t *testing.T) {
	def := daily("10:00")
	def.Frequency = Monthly
	def.CreatedAt = at(2024, 1, 31, 9, 0, 0)

	// From early February the next 31st is in March.
	got, err := NextTrigger(def, at(2024, 2, 2, 0, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(2024, 3, 31, 10, 0, 0), *got)

	// April has no 31st.
	got, err = NextTrigger(def, at(2024, 3, 31, 11, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(2024, 5, 31, 10, 0, 0), *got)
}

func TestNextTriggerOnce(t *testing.T) {
	def := daily("12:00")
	def.Frequency = Once

	got, err := NextTrigger(def, at(2024, 1, 8, 11, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(2024, 1, 8, 12, 0, 0), *got)

	fired := at(2024, 1, 8, 12, 0, 0)
	def.LastTriggered = &fired
	got, err = NextTrigger(def, at(2024, 1, 8, 12, 0, 5))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNextTriggerIdempotent(t *testing.T) {
	def := daily("18:45")
	def.Frequency = Weekly
	def.DaysOfWeek = []int{0, 6}
	from := at(2024, 1, 10, 19, 0, 0)

	first, err := NextTrigger(def, from)
	require.NoError(t, err)
	second, err := NextTrigger(def, from)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestNextTriggerStrictlyAfter(t *testing.T) {
	defs := []Definition{daily("00:00"), daily("12:30"), daily("23:59")}
	weekly := daily("06:15")
	weekly.Frequency = Weekly
	weekly.DaysOfWeek = []int{2}
	monthly := daily("06:15")
	monthly.Frequency = Monthly
	monthly.CreatedAt = at(2024, 1, 29, 0, 0, 0)
	defs = append(defs, weekly, monthly)

	start := at(2024, 2, 1, 0, 0, 0)
	for _, def := range defs {
		for step := 0; step < 24*60*40; step += 37 {
			from := start.Add(time.Duration(step) * time.Minute)
			got, err := NextTrigger(def, from)
			require.NoError(t, err)
			require.NotNil(t, got)
			require.True(t, got.After(from), "%s %s from %s gave %s", def.Frequency, def.ScheduleTime, from, got)
		}
	}
}

func TestNextTriggerInvalid(t *testing.T) {
	_, err := NextTrigger(daily("7:30"), at(2024, 1, 8, 6, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	def := daily("07:30")
	def.Frequency = "hourly"
	_, err = NextTrigger(def, at(2024, 1, 8, 6, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}
