package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.Local)
}

func TestIsInQuietHours(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		now        time.Time
		want       bool
	}{
		{"overnight late evening", "22:00", "07:00", at(23, 30), true},
		{"overnight after end", "22:00", "07:00", at(8, 0), false},
		{"overnight early morning", "23:00", "06:00", at(2, 0), true},
		{"overnight midday", "23:00", "06:00", at(12, 0), false},
		{"start is inclusive", "22:00", "07:00", at(22, 0), true},
		{"end is exclusive", "22:00", "07:00", at(7, 0), false},
		{"same day window", "09:00", "17:00", at(12, 15), true},
		{"same day before", "09:00", "17:00", at(8, 59), false},
		{"empty window", "10:00", "10:00", at(10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsInQuietHours(tt.now, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsInQuietHours_InvalidClock(t *testing.T) {
	_, err := IsInQuietHours(at(1, 0), "25:00", "07:00")
	assert.Error(t, err)

	_, err = IsInQuietHours(at(1, 0), "22:00", "7am")
	assert.Error(t, err)
}

func TestEffectivelyEnabled(t *testing.T) {
	assert.True(t, EffectivelyEnabled(true, 1))
	assert.False(t, EffectivelyEnabled(true, 0))
	assert.False(t, EffectivelyEnabled(false, 3))
}

func TestPriorityLabel(t *testing.T) {
	want := map[int]string{1: "Min", 2: "Low", 3: "Default", 4: "High", 5: "Urgent"}
	for p, label := range want {
		assert.Equal(t, label, PriorityLabel(p))
	}
	assert.Equal(t, "Default", PriorityLabel(0))
	assert.Equal(t, "Default", PriorityLabel(9))
	assert.Equal(t, "priority-urgent", PriorityClass(5))
	assert.Equal(t, "priority-default", PriorityClass(-1))
}

func TestSuppressionWindow(t *testing.T) {
	assert.Equal(t, time.Duration(0), SuppressionWindow(FrequencyEveryTime, 0))
	assert.Equal(t, 10*time.Minute, SuppressionWindow(FrequencyEveryTime, 10))
	// cooldown is ignored for rate-limited frequencies
	assert.Equal(t, time.Hour, SuppressionWindow(FrequencyOncePerHour, 10))
	assert.Equal(t, 7*24*time.Hour, SuppressionWindow(FrequencyOncePerWeek, 0))
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidFrequency("once_per_4h"))
	assert.False(t, ValidFrequency("twice_a_day"))
	assert.True(t, ValidEscalationTimeout(45))
	assert.False(t, ValidEscalationTimeout(20))
	assert.True(t, ValidCategory(CategorySSL))
	assert.False(t, ValidCategory("network"))
	assert.True(t, ValidSeverity("warning"))
	assert.False(t, ValidSeverity("error"))
}
